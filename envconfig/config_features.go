package envconfig

var (
	// NumClasses is the width of the classifier appended to every network.
	NumClasses = Uint("CNNBENCH_NUM_CLASSES", 1001)

	// Seed seeds weight initialization, dropout masks and synthetic inputs.
	Seed = Uint64("CNNBENCH_SEED", 1234)

	// NoRecord disables persisting benchmark runs to the results store.
	NoRecord = Bool("CNNBENCH_NORECORD")
)
