// Package config manages user-level settings stored at
// ~/.context-kiwi/config.yaml. Values can be overridden with KIWI_*
// environment variables; nested keys use underscores (KIWI_SYNC_TIMEOUT).
package config
