package config

import (
	"github.com/discedric/netbox-license/internal/license/accounting"
	"go.uber.org/fx"
)

var Module = fx.Module("config",
	fx.Provide(Load),
	fx.Provide(
		NewPolicyHolder,
		func(h *PolicyHolder) accounting.PolicySource { return h },
	),
)
