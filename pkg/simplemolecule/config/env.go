package config

import (
	"fmt"

	"github.com/ilyakaznacheev/cleanenv"
)

// WithEnv reads the configuration from environment variables.
//
// Variables:
//
//	ENVIRONMENT                   runtime environment (default: "development")
//	MOLECULE_INPUT_ROOT           root of the fallback tree (default: "./data/input")
//	MOLECULE_DEFAULT_FOLDER       folder for uploads and fallback reads (default: "molecules")
//	MOLECULE_FALLBACK             fs, s3, memory or none (default: "fs")
//	MOLECULE_FALLBACK_TIMEOUT     bound on one fallback read (default: "5s")
//	MOLECULE_FALLBACK_WRITE_BACK  store fallback hits in the cache (default: true)
//	MOLECULE_MIRROR_WRITES        write stored records to the fallback tree (default: true)
//	MOLECULE_HISTORY_POLICY       preserve or reset (default: "preserve")
//	MOLECULE_NOTIFY_QUEUE         notification queue size (default: 256)
//	AWS_S3_REGION, AWS_S3_BUCKET, AWS_S3_PREFIX, AWS_S3_ENDPOINT, AWS_S3_USE_PATH_STYLE,
//	AWS_ACCESS_KEY_ID, AWS_SECRET_ACCESS_KEY
//	API_KEY_SHA256                hex sha256 of the API key; empty disables the gate
//
// Zero-valued fields take their env-default, so WithEnv should be the first option.
func WithEnv() Option {
	return func(c *ServerConfig) error {
		if err := cleanenv.ReadEnv(c); err != nil {
			return fmt.Errorf("failed to read environment: %w", err)
		}
		return nil
	}
}
