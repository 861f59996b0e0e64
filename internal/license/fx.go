package license

import (
	"github.com/discedric/netbox-license/internal/license/repository"
	"github.com/discedric/netbox-license/internal/license/service"
	"go.uber.org/fx"
)

var Module = fx.Module("license.service",
	fx.Provide(repository.Provide),
	fx.Provide(
		service.NewLicenseTypeService,
		service.NewLicenseService,
		service.NewAssignmentService,
	),
)
