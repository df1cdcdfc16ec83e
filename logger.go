package spmodel

import (
	"github.com/mongodb/grip"
	"github.com/mongodb/grip/level"
	"github.com/mongodb/grip/logging"
	"github.com/mongodb/grip/send"
	"github.com/pkg/errors"
)

// NewLogger returns a journaler writing to standard output at the given
// threshold.
func NewLogger(name, threshold string) (grip.Journaler, error) {
	if threshold == "" {
		threshold = defaultLogLevel
	}
	sender, err := send.NewNativeLogger(name, send.LevelInfo{
		Default:   level.Info,
		Threshold: level.FromString(threshold),
	})
	if err != nil {
		return nil, errors.Wrap(err, "creating native logger")
	}

	return logging.MakeGrip(sender), nil
}
