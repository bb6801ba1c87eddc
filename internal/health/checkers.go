package health

import (
	"context"
	"fmt"

	"github.com/novahale/vocalis/pkg/provider/vad"
)

// Pinger is the connectivity probe implemented by the calibration store.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Storage returns a checker that verifies the voice settings store is
// reachable.
func Storage(p Pinger) Checker {
	return Checker{
		Name: "storage",
		Check: func(ctx context.Context) error {
			if err := p.Ping(ctx); err != nil {
				return fmt.Errorf("settings store unreachable: %w", err)
			}
			return nil
		},
	}
}

// VAD returns a checker that runs one silent frame through the configured
// engine, verifying that sessions can be opened and frames processed.
func VAD(engine vad.Engine) Checker {
	return Checker{
		Name: "vad",
		Check: func(_ context.Context) error {
			cfg := vad.Config{}.WithDefaults()
			sess, err := engine.NewSession(cfg)
			if err != nil {
				return fmt.Errorf("open session: %w", err)
			}
			defer sess.Close()

			frame := make([]byte, cfg.SampleRate*cfg.FrameSizeMs/1000*2)
			if _, err := sess.ProcessFrame(frame); err != nil {
				return fmt.Errorf("process frame: %w", err)
			}
			return nil
		},
	}
}
