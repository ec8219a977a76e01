// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package config loads the ping configuration file.
//
// The file path comes from the --config flag, else the PING_CONFIG
// environment variable, else config.yaml in the working directory
// (see [ResolvePath]). YAML is the native format; files ending in .json
// or .jsonc are accepted and may contain comments and trailing commas.
//
// Loading is strict. Unknown keys are errors, except that dashes and
// underscores in key names are interchangeable (log-level and log_level
// name the same key). After decoding:
//
//   - the development, staging or production section matching
//     environment is applied over the base values;
//   - ${HOME}, ${CONFIG_DIR} and ${VAR:-default} are expanded in path
//     fields;
//   - relative paths are resolved against the configuration file's
//     directory, so the master and the CLI agree on them regardless of
//     their working directories.
//
// [Config.Validate] reports every problem at once via errors.Join.
// [LoadFile] validates before returning, so a Config obtained from it
// is always usable.
package config
