// Package config loads the YAML description of a persistence setup and
// builds the manager, vocabulary and journal it names.
//
//	mode: partitioned
//	dir: tenants
//	template: template.xml
//	schema: kinds.cue
//	journal: journal.db
//	ids: ulid
//	log:
//	  level: debug
//	  format: json
//
// Relative paths are resolved against the directory of the config file.
package config
