/*
Package config holds the configuration file definitions.

Regdomain uses a single configuration file, regdomain.conf. It is read at
startup, changes take effect after a restart. Use "regdomain config test" to
check a configuration file, and "regdomain config describe" to print an
annotated empty configuration file, as below.

# sconf

The config file is in "sconf" format. Properties of sconf files:

  - Indentation with tabs only.
  - "#" as first non-whitespace character makes the line a comment. Lines with a
    value cannot also have a comment.
  - Values don't have syntax indicating their type. For example, strings are
    not quoted/escaped and can never span multiple lines.
  - Fields that are optional can be left out completely. But the value of an
    optional field may itself have required fields.

See https://pkg.go.dev/github.com/mjl-/sconf for details.

# regdomain.conf

	# NOTE: This config file is in 'sconf' format. Indent with tabs. Comments must be
	# on their own line, they don't end a line. Do not escape or quote strings.
	# Details: https://pkg.go.dev/github.com/mjl-/sconf.


	# Directory where the database with snapshots of the public suffix list is
	# stored. If this is a relative path, it is relative to the directory of
	# regdomain.conf.
	DataDir:

	# Default log level, one of: error, info, debug, trace.
	LogLevel:

	# Overrides of log level per package (e.g. publicsuffix, orgdomain, pslfetch,
	# pslstore, pslupdate, webapi). (optional)
	PackageLogLevels:
		x:

	# Address to serve the HTTP API on, host:port. Default: localhost:8080.
	# (optional)
	Listen:

	# Address to serve prometheus metrics on, host:port. If empty, metrics are served
	# at /metrics on the API address. (optional)
	MetricsListen:

	# Number of snapshots of the public suffix list index to keep in the database.
	# Default: 4. (optional)
	KeepSnapshots: 0

	# Where and how often to fetch the public suffix list. (optional)
	PublicSuffixList:

		# URL of the list. Default:
		# https://publicsuffix.org/list/public_suffix_list.dat. (optional)
		URL:

		# Only use rules from the ICANN section of the list, ignoring the private
		# domains, e.g. for determining organizational domains as with DMARC. (optional)
		ICANNOnly: false

		# How often to fetch the list, between 1h and 720h. The maintainers of the list
		# ask not to fetch it more than once a day. Default: 168h. (optional)
		RefreshInterval: 0s

		# Delay before retrying after a failed fetch, doubled for each further failure.
		# Default: 1m. (optional)
		InitialBackoff: 0s

		# Maximum delay between retries. Default: 6h. (optional)
		MaxBackoff: 0s

		# Maximum size of the list in bytes. Default: 16777216. (optional)
		MaxSize: 0

		# File with a public suffix list to load at startup if the database has no
		# snapshot yet, e.g. a copy distributed with the operating system. If relative,
		# it is relative to the directory of regdomain.conf. (optional)
		LocalFile:

	# Serve the HTTP API over HTTPS, with certificates requested through ACME, e.g.
	# from Let's Encrypt. The listen address should be on port 443 for ACME
	# validation to work. (optional)
	ACME:

		# Hostnames to request certificates for.
		Hostnames:
			-

		# Email address to register with the ACME provider. The provider can email about
		# problems with the account.
		ContactEmail:

		# Directory to store the ACME account key and certificates in. If relative, it is
		# relative to DataDir. Default: acme. (optional)
		CacheDir:

# Examples

A minimal configuration:

	DataDir: data
	LogLevel: info
*/
package config
