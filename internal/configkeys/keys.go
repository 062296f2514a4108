package configkeys

const (
	delimiter = "."

	// Environment variables are the upper-cased keys with dots as underscores,
	// e.g. AUTOMEMO_BENCH_CALLS.
	ConfigPrefix = "automemo"

	ConfigVerbose = ConfigPrefix + delimiter + "verbose"

	ConfigMemoPrefix       = ConfigPrefix + delimiter + "memo"
	ConfigMemoShards       = ConfigMemoPrefix + delimiter + "shards"
	ConfigMemoSingleFlight = ConfigMemoPrefix + delimiter + "single_flight"

	ConfigBenchPrefix = ConfigPrefix + delimiter + "bench"
	ConfigBenchCalls  = ConfigBenchPrefix + delimiter + "calls"
	ConfigBenchArg    = ConfigBenchPrefix + delimiter + "arg"

	ConfigChurnPrefix = ConfigPrefix + delimiter + "churn"
	ConfigChurnKeys   = ConfigChurnPrefix + delimiter + "keys"
	ConfigChurnSettle = ConfigChurnPrefix + delimiter + "settle"
)
