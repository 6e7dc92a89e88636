package cloud

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"school_bus/internal/config"
)

func TestClientOptions(t *testing.T) {
	assert.Empty(t, ClientOptions(&config.Config{}))
	assert.Len(t, ClientOptions(&config.Config{FirebaseCredentials: `{"type":"service_account"}`}), 1)
	assert.Len(t, ClientOptions(&config.Config{FirebaseCredentials: "/etc/keys/sa.json"}), 1)
}
