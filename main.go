package main

import (
	"strconv"

	"github.com/rs/zerolog/log"

	"version-registry/api"
	"version-registry/bundles"
	"version-registry/bundles/filesystem"
	"version-registry/bundles/memory"
	"version-registry/bundles/s3"
	"version-registry/config"
	"version-registry/store"
)

func main() {
	if err := config.Load(); err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	versionStore := store.Open()
	bundleStore := initializeBundleStore()

	server := api.NewServer(versionStore, bundleStore, config.Cfg.APIKey)

	addr := ":" + strconv.Itoa(config.Cfg.Port)
	log.Info().Str("addr", addr).Msg("version registry listening")
	if err := server.Router().Run(addr); err != nil {
		log.Fatal().Err(err).Msg("server exited")
	}
}

func initializeBundleStore() bundles.Store {
	var bundleStore bundles.Store
	switch config.Cfg.Storage.Type {
	case "s3":
		bundleStore = initS3Store()
	case "filesystem":
		bundleStore = initFilesystemStore()
	case "memory":
		log.Warn().Msg("memory bundle storage keeps nothing across restarts")
		bundleStore = memory.New()
	default:
		log.Warn().Msgf("unknown storage type '%s', defaulting to filesystem", config.Cfg.Storage.Type)
		bundleStore = initFilesystemStore()
	}

	return bundleStore
}

func initFilesystemStore() bundles.Store {
	fsStore, err := filesystem.New(config.Cfg.Storage.Dir)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize filesystem bundle storage")
	}
	log.Info().
		Str("storage_dir", config.Cfg.Storage.Dir).
		Msg("filesystem bundle storage initialized")

	return fsStore
}

func initS3Store() bundles.Store {
	s3Store, err := s3.New()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize s3 bundle storage")
	}
	log.Info().
		Str("bucket", config.Cfg.Storage.S3.Bucket).
		Msg("s3 bundle storage initialized")

	return s3Store
}
