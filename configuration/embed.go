// Package configuration provides the embedded default configuration used
// when no config file is present.
package configuration

import _ "embed"

// DefaultConfig is the bundled default-config.yaml, the fallback when
// neither $AGENT_CONFIG_DIR nor the working directory carries a
// .taskorchestrator/config.yaml.
//
//go:embed default-config.yaml
var DefaultConfig []byte
