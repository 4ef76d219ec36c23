package internal

import (
	"testing"

	"github.com/kcmvp/archunit"
)

func TestArchitecture(t *testing.T) {
	bridges := archunit.Packages("bridges", []string{".../internal/bridges/..."})
	infrastructure := archunit.Packages("infrastructure", []string{".../internal/infrastructure/..."})
	api := archunit.Packages("api", []string{".../internal/api/..."})
	auditLog := archunit.Packages("audit", []string{".../internal/audit/..."})

	// The appliance engine sees MQTT, storage and metrics only through its
	// own interfaces.
	if err := bridges.ShouldNotReferLayers(infrastructure); err != nil {
		t.Errorf("Architecture violation: bridges depend on infrastructure: %v", err)
	}
	if err := bridges.ShouldNotReferLayers(api); err != nil {
		t.Errorf("Architecture violation: bridges depend on api: %v", err)
	}
	if err := bridges.ShouldNotReferLayers(auditLog); err != nil {
		t.Errorf("Architecture violation: bridges depend on audit: %v", err)
	}

	if err := infrastructure.ShouldNotReferLayers(bridges); err != nil {
		t.Errorf("Architecture violation: infrastructure depends on bridges: %v", err)
	}
	if err := infrastructure.ShouldNotReferLayers(api); err != nil {
		t.Errorf("Architecture violation: infrastructure depends on api: %v", err)
	}

	if err := auditLog.ShouldNotReferLayers(api); err != nil {
		t.Errorf("Architecture violation: audit depends on api: %v", err)
	}
}

func TestBridgePackagePresent(t *testing.T) {
	homeconnect := archunit.Packages("homeconnect", []string{".../internal/bridges/homeconnect"})
	if len(homeconnect.Packages()) == 0 {
		t.Error("No homeconnect package found in bridges")
	}
}
