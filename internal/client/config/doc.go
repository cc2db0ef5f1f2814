// Package config loads runtime settings for the GophChat client.
//
// Sources, lowest to highest precedence:
//  1. Defaults (LoadDefaults).
//  2. A config file named by -c or -config, JSON or YAML by extension.
//  3. Command-line flags -d, -i and -l.
//
// Example YAML:
//
//	database_path: /var/lib/gophchat/chat.db
//	watch_interval: 500ms
//	log_level: info
//	hash_algorithm: argon2id
package config
