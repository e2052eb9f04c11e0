package config

import (
	"errors"
	"io/fs"
	"strings"

	"github.com/spf13/viper"
)

// envKeyReplacer maps nested keys to env names: sync.timeout → SYNC_TIMEOUT.
var envKeyReplacer = strings.NewReplacer(".", "_")

func isNotExist(err error) bool {
	var notFound viper.ConfigFileNotFoundError
	return errors.As(err, &notFound) || errors.Is(err, fs.ErrNotExist)
}
