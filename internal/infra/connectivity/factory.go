package connectivity

import (
	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/cloudwave/internal/infra/config"
)

// NewChainFromConfig creates the probe chain described by the connectivity section.
func NewChainFromConfig(cfg config.ConnectivityConfig) (*Chain, error) {
	probes := make([]Probe, 0, len(cfg.Probes))

	for i, pcfg := range cfg.Probes {
		var probe Probe
		var err error
		zlog.Debug().Msgf("creating connectivity probe: index=%d type=%s settings=%+v", i+1, pcfg.Type, pcfg.Settings)
		switch pcfg.Type {
		case "tcp":
			probe, err = NewTCPProbe(pcfg.Settings)
		case "http":
			probe, err = NewHTTPProbe(pcfg.Settings)
		case "sysfs":
			probe, err = NewSysfsProbe(pcfg.Settings)
		default:
			return nil, errors.Newf("unsupported probe type: %s (probe index %d)", pcfg.Type, i)
		}
		if err != nil {
			return nil, errors.Wrapf(err, "failed to create probe (index %d, type %s)", i, pcfg.Type)
		}

		probes = append(probes, probe)
		zlog.Info().Msgf("registered connectivity probe: index=%d probe=%s", i+1, probe.Name())
	}

	if len(probes) == 0 {
		zlog.Warn().Msg("no connectivity probes configured, network is assumed online")
	}
	return NewChain(probes...), nil
}
