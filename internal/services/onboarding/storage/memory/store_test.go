package memory

import (
	"testing"

	"github.com/louisbranch/onboarding.space/internal/services/onboarding/storage"
	"github.com/louisbranch/onboarding.space/internal/services/onboarding/storage/storagetest"
)

func TestStoreConformance(t *testing.T) {
	storagetest.RunStoreConformance(t, func(*testing.T) storage.Store { return New() })
}
