package commands

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/teranos/featsmith/am"
	"github.com/teranos/featsmith/errors"
	"github.com/teranos/featsmith/logger"
	"github.com/teranos/featsmith/pulse"
	"github.com/teranos/featsmith/pulse/emit"
)

// session is what every pipeline command needs: validated config, the
// process logger and a progress emitter matching the output flags.
type session struct {
	cfg       *am.Config
	log       *zap.SugaredLogger
	emitter   pulse.ProgressEmitter
	verbosity int
	json      bool
}

func newSession(cmd *cobra.Command) (*session, error) {
	cfg, err := am.Load()
	if err != nil {
		return nil, errors.Wrap(err, "failed to load configuration")
	}
	if err := cfg.Validate(); err != nil {
		return nil, errors.WithHint(err, "run 'featsmith am validate' for details")
	}

	verbosity, _ := cmd.Flags().GetCount("verbose")
	jsonOutput, _ := cmd.Flags().GetBool("json")

	s := &session{
		cfg:       cfg,
		log:       logger.Logger,
		verbosity: verbosity,
		json:      jsonOutput,
	}
	if jsonOutput {
		s.emitter = emit.NewJSONEmitterTo(cmd.OutOrStdout())
	} else {
		s.emitter = emit.NewCLIEmitterTo(cmd.OutOrStdout(), verbosity)
	}
	s.log.Debugw("Configuration loaded", "config", cfg.String())
	return s, nil
}
