package app

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	configFlagName = "config"
	envPrefix      = "SEATLINK"
)

var cfgFile string

func addConfigFlag(basename string, fs *pflag.FlagSet) {
	fs.StringVarP(&cfgFile, configFlagName, "c", cfgFile,
		fmt.Sprintf("Read configuration from the specified file; searched as %s.yaml in ., $HOME/.seatlink and /etc/seatlink when unset.", basename))
}

// loadConfig prepares v to read the config file and SEATLINK_* environment.
// A missing config file is not an error.
func loadConfig(v *viper.Viper, basename string) error {
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".seatlink"))
		}
		v.AddConfigPath("/etc/seatlink")
		v.SetConfigName(basename)
	}

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgFile == "" && errors.As(err, &notFound) {
			return nil
		}
		return fmt.Errorf("read config file %s: %w", v.ConfigFileUsed(), err)
	}
	return nil
}
