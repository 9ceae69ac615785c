package farm

import (
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

type (
	flagType interface {
		string | int | bool | time.Duration
	}

	// flagDef defines a command-line flag bound to a configuration key.
	flagDef[T flagType] struct {
		name         string
		viperKey     string
		defaultValue T
		description  string
	}
)

// declareFlags declares multiple flags and binds them to viper configuration keys.
func declareFlags[T flagType](flags *pflag.FlagSet, defs []flagDef[T]) error {
	for _, def := range defs {
		if err := declareFlag(flags, def); err != nil {
			return err
		}
	}
	return nil
}

// declareFlag declares a single flag and binds it to a viper configuration key.
// Flags without a key are read directly from the command.
func declareFlag[T flagType](flags *pflag.FlagSet, def flagDef[T]) error {
	switch value := any(def.defaultValue).(type) {
	case string:
		flags.String(def.name, value, def.description)
	case int:
		flags.Int(def.name, value, def.description)
	case bool:
		flags.Bool(def.name, value, def.description)
	case time.Duration:
		flags.Duration(def.name, value, def.description)
	}

	if def.viperKey == "" {
		return nil
	}
	return viper.BindPFlag(def.viperKey, flags.Lookup(def.name))
}

func mustDeclare(err error) {
	if err != nil {
		panic(err)
	}
}
