package bootstrap

import (
	"github.com/kbukum/whisper-subtitle/config"
)

// Config is satisfied by any struct embedding config.ServiceConfig that
// also implements ApplyDefaults and Validate.
type Config interface {
	GetServiceConfig() *config.ServiceConfig
	ApplyDefaults()
	Validate() error
}
