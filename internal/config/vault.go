package config

import (
	"fmt"
	"net/http"
	"time"

	"github.com/hashicorp/vault/api"
	"github.com/spf13/viper"
)

// vaultOverrideKeys maps the fields of the service's Vault secret onto
// config keys. Only string values present in the secret override what
// the file and environment provided.
var vaultOverrideKeys = map[string]string{
	"database_password":        "database.password",
	"redis_password":           "redis.password",
	"stripe_secret_key":        "stripe.secret_key",
	"stripe_webhook_secret":    "stripe.webhook_secret",
	"storefront_client_secret": "storefront.client_secret",
}

// applyVaultOverrides reads the service secret and layers its values on
// top of the loaded configuration.
func applyVaultOverrides(address, token, secretPath string) error {
	client, err := newVaultClient(address, token)
	if err != nil {
		return err
	}

	data, err := readSecret(client, secretPath)
	if err != nil {
		return err
	}

	for field, key := range vaultOverrideKeys {
		if value, ok := data[field].(string); ok && value != "" {
			viper.Set(key, value)
		}
	}
	return nil
}

func newVaultClient(address, token string) (*api.Client, error) {
	client, err := api.NewClient(&api.Config{
		Address: address,
		HttpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create vault client: %w", err)
	}
	client.SetToken(token)
	return client, nil
}

// readSecret fetches a secret, unwrapping the nested data field KV v2
// responses carry.
func readSecret(client *api.Client, path string) (map[string]interface{}, error) {
	secret, err := client.Logical().Read(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read secret from %s: %w", path, err)
	}
	if secret == nil || secret.Data == nil {
		return nil, fmt.Errorf("no secret data found at %s", path)
	}

	if nested, ok := secret.Data["data"].(map[string]interface{}); ok {
		return nested, nil
	}
	return secret.Data, nil
}
