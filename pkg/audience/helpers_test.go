package audience

import "igaudience/pkg/config"

func configDefaults() config.CollectorConfig {
	return config.DefaultConfig().Collector
}
