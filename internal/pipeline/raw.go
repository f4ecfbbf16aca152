package pipeline

// RawTask is the as-written shape of one task entry in runr.yaml, before
// name-to-id resolution and default-image substitution.
type RawTask struct {
	Name     string   `yaml:"name"`
	Commands string   `yaml:"commands"`
	Image    *string  `yaml:"image,omitempty"`
	Depends  []string `yaml:"depends,omitempty"`
}

// RawPipeline is the top-level shape of runr.yaml, decoded as-is. It is
// validated and resolved into a Pipeline by FromRaw.
type RawPipeline struct {
	DefaultImage *string    `yaml:"default_image,omitempty"`
	NParallel    *int       `yaml:"n_parallel,omitempty"`
	Tasks        []RawTask  `yaml:"tasks"`
}
