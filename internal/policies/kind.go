package policies

import (
	"fmt"
	"net/url"
	"strings"
)

const (
	settingsCatalogKindValueConstant     = "settings_catalog"
	deviceConfigurationKindValueConstant = "device_configuration"

	settingsCatalogSubdirectoryConstant     = "SettingsCatalog"
	deviceConfigurationSubdirectoryConstant = "DeviceConfiguration"

	settingsCatalogDisplayNameFieldConstant     = "name"
	deviceConfigurationDisplayNameFieldConstant = "displayName"

	configurationPoliciesResourceConstant = "deviceManagement/configurationPolicies"
	deviceConfigurationsResourceConstant  = "deviceManagement/deviceConfigurations"

	filterQueryKeyConstant                 = "$filter"
	expandQueryKeyConstant                 = "$expand"
	technologiesFilterExpressionConstant   = "technologies has 'mdm'"
	platformFilterExpressionTemplate       = "technologies has 'mdm' and platforms has '%s'"
	settingDefinitionsExpandValueConstant  = "settingDefinitions"
	policySettingsPathTemplateConstant     = "deviceManagement/configurationPolicies('%s')/settings"
	plaintextFunctionPathTemplateConstant  = "deviceManagement/deviceConfigurations/%s/getOmaSettingPlaintextValue(secretReferenceValueId='%s')"
	unknownKindErrorTemplateConstant       = "unknown policy kind %q"
	unsupportedPlatformErrorTemplate       = "unsupported platform %q"
	platformWindowsValueConstant           = "windows10"
	platformMacOSValueConstant             = "macOS"
)

// Kind is the closed variant of migrated policy types.
type Kind string

// Supported policy kinds.
const (
	KindSettingsCatalog     Kind = Kind(settingsCatalogKindValueConstant)
	KindDeviceConfiguration Kind = Kind(deviceConfigurationKindValueConstant)
)

// AllKinds lists every migrated policy kind in pipeline order.
func AllKinds() []Kind {
	return []Kind{KindSettingsCatalog, KindDeviceConfiguration}
}

// ParseKind normalizes a textual kind value.
func ParseKind(kindValue string) (Kind, error) {
	normalizedValue := strings.ToLower(strings.TrimSpace(kindValue))
	switch Kind(normalizedValue) {
	case KindSettingsCatalog:
		return KindSettingsCatalog, nil
	case KindDeviceConfiguration:
		return KindDeviceConfiguration, nil
	default:
		return "", fmt.Errorf(unknownKindErrorTemplateConstant, kindValue)
	}
}

// StagingSubdirectory names the per-kind directory under the export root.
func (kind Kind) StagingSubdirectory() string {
	if kind == KindSettingsCatalog {
		return settingsCatalogSubdirectoryConstant
	}
	return deviceConfigurationSubdirectoryConstant
}

// DisplayNameField names the raw field carrying the policy display name.
func (kind Kind) DisplayNameField() string {
	if kind == KindSettingsCatalog {
		return settingsCatalogDisplayNameFieldConstant
	}
	return deviceConfigurationDisplayNameFieldConstant
}

// CreationResourcePath is the POST target for re-creating policies of this kind.
func (kind Kind) CreationResourcePath() string {
	if kind == KindSettingsCatalog {
		return configurationPoliciesResourceConstant
	}
	return deviceConfigurationsResourceConstant
}

// DisplayName extracts the policy display name from a raw record.
func (kind Kind) DisplayName(record map[string]any) (string, bool) {
	rawValue, exists := record[kind.DisplayNameField()]
	if !exists {
		return "", false
	}
	displayName, isString := rawValue.(string)
	if !isString || len(strings.TrimSpace(displayName)) == 0 {
		return "", false
	}
	return displayName, true
}

// Platform narrows settings catalog listings to one operating system.
type Platform string

// Supported listing platforms.
const (
	PlatformWindows Platform = Platform(platformWindowsValueConstant)
	PlatformMacOS   Platform = Platform(platformMacOSValueConstant)
)

// ParsePlatform normalizes a textual platform value; empty means no filter.
func ParsePlatform(platformValue string) (Platform, error) {
	trimmedValue := strings.TrimSpace(platformValue)
	if len(trimmedValue) == 0 {
		return "", nil
	}
	for _, knownPlatform := range []Platform{PlatformWindows, PlatformMacOS} {
		if strings.EqualFold(trimmedValue, string(knownPlatform)) {
			return knownPlatform, nil
		}
	}
	return "", fmt.Errorf(unsupportedPlatformErrorTemplate, platformValue)
}

// ListResourcePath builds the collection path for one kind, applying the
// mdm technology constraint and optional platform filter to settings
// catalog listings.
func (kind Kind) ListResourcePath(platform Platform) string {
	if kind == KindDeviceConfiguration {
		return deviceConfigurationsResourceConstant
	}

	filterExpression := technologiesFilterExpressionConstant
	if len(platform) > 0 {
		filterExpression = fmt.Sprintf(platformFilterExpressionTemplate, string(platform))
	}

	queryValues := url.Values{}
	queryValues.Set(filterQueryKeyConstant, filterExpression)
	return configurationPoliciesResourceConstant + "?" + queryValues.Encode()
}

// SettingsResourcePath addresses the expanded setting instances of one
// settings catalog policy.
func SettingsResourcePath(policyID string) string {
	queryValues := url.Values{}
	queryValues.Set(expandQueryKeyConstant, settingDefinitionsExpandValueConstant)
	return fmt.Sprintf(policySettingsPathTemplateConstant, policyID) + "?" + queryValues.Encode()
}

// PlaintextResourcePath addresses the Graph function resolving one encrypted
// OMA setting value, keyed by policy id and secret reference id.
func PlaintextResourcePath(policyID string, secretReferenceID string) string {
	return fmt.Sprintf(plaintextFunctionPathTemplateConstant, policyID, secretReferenceID)
}
