package testsuite

import (
	"encoding/json"
	"os"
	"testing"

	jcr "github.com/tinode/jsonco"
)

// ConfigEnv names the environment variable with the path to the adapter test config.
const ConfigEnv = "VIDROOM_TEST_DB_CONFIG"

type configType struct {
	// Configurations for individual adapters.
	Adapters map[string]json.RawMessage `json:"adapters"`
}

// AdapterConfig loads the config section of the named adapter from the file given by
// ConfigEnv. The test is skipped if the variable is unset or the section is missing.
func AdapterConfig(t *testing.T, name string) json.RawMessage {
	t.Helper()

	path := os.Getenv(ConfigEnv)
	if path == "" {
		t.Skipf("%s is not set, skipping %s adapter tests", ConfigEnv, name)
	}

	file, err := os.Open(path)
	if err != nil {
		t.Fatal("Failed to read config file:", err)
	}
	defer file.Close()

	var config configType
	if err = json.NewDecoder(jcr.New(file)).Decode(&config); err != nil {
		t.Fatal("Failed to parse config file:", err)
	}

	conf, ok := config.Adapters[name]
	if !ok {
		t.Skipf("config has no section for the %s adapter", name)
	}
	return conf
}
