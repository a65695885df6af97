package pipeline

import (
	"strings"

	"github.com/policytools/policymig/internal/graphauth"
)

const (
	exportRootConfigurationKeySuffix        = ".export_root"
	createMissingRootConfigurationKeySuffix = ".create_missing_root"
	platformConfigurationKeySuffix          = ".platform"

	defaultExportRootConstant        = "./policy-export"
	defaultCreateMissingRootConstant = true
	defaultPlatformConstant          = ""
)

// TenantConfiguration identifies one Graph tenant and its credential source.
type TenantConfiguration struct {
	TenantID           string `mapstructure:"tenant_id"`
	ClientID           string `mapstructure:"client_id"`
	ClientSecretSource string `mapstructure:"client_secret_source"`
}

// Configuration captures the persisted migration settings.
type Configuration struct {
	Source            TenantConfiguration `mapstructure:"source"`
	Destination       TenantConfiguration `mapstructure:"destination"`
	ExportRoot        string              `mapstructure:"export_root"`
	CreateMissingRoot bool                `mapstructure:"create_missing_root"`
	Platform          string              `mapstructure:"platform"`
}

// DefaultConfigurationValues exposes the Viper defaults under the provided key.
func DefaultConfigurationValues(configurationKey string) map[string]any {
	return map[string]any{
		configurationKey + exportRootConfigurationKeySuffix:        defaultExportRootConstant,
		configurationKey + createMissingRootConfigurationKeySuffix: defaultCreateMissingRootConstant,
		configurationKey + platformConfigurationKeySuffix:          defaultPlatformConstant,
	}
}

// SecretSource parses the configured client secret reference.
func (tenantConfiguration TenantConfiguration) SecretSource() (graphauth.SecretSourceConfiguration, error) {
	return graphauth.ParseSecretSource(tenantConfiguration.ClientSecretSource)
}

// Configured reports whether the tenant section carries any values.
func (tenantConfiguration TenantConfiguration) Configured() bool {
	return len(strings.TrimSpace(tenantConfiguration.TenantID)) > 0 ||
		len(strings.TrimSpace(tenantConfiguration.ClientID)) > 0 ||
		len(strings.TrimSpace(tenantConfiguration.ClientSecretSource)) > 0
}
