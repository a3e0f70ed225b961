/*
Command regdomain looks up registrable domains with the public suffix list.

The registrable domain of a name is its public suffix plus one label, e.g.
"example.co.uk" for "www.example.co.uk", where "co.uk" is the public suffix.
It is also known as eTLD+1 or organizational domain. Regdomain handles the
wildcard ("*.ck") and exception ("!www.ck") rules of the list.

  - Command-line lookups against a list file, an index file or the latest
    snapshot in the database.
  - An HTTP API, with health and readiness checks and prometheus metrics.
  - Periodic refresh of the list, keeping snapshots of the indexes in a
    database for fast startup without network access.
  - Optional HTTPS with certificates from ACME, e.g. Let's Encrypt.

# Commands

	regdomain [-config regdomain.conf] [-loglevel level] [-logfmt] ...
	regdomain serve
	regdomain lookup [-list file | -index file] url ...
	regdomain suffix [-list file | -index file] hostname ...
	regdomain build [-icann] public_suffix_list.dat index.bin
	regdomain fetch [-o file] [url]
	regdomain refresh
	regdomain snapshots
	regdomain config test
	regdomain config describe >regdomain.conf
	regdomain help [command ...]
	regdomain version

Many commands talk to the database of the configuration file, or read the
configuration file. The configuration file is described in package config.

# regdomain serve

Start regdomain, serving the HTTP API for registrable domain lookups.

At startup, the public suffix list index from the latest snapshot in the
database is loaded. If there is no snapshot, the LocalFile from the
configuration file is loaded, if configured. Until an index is loaded, lookups
fail and /readyz returns 503. The list is fetched again periodically, new
versions are stored as snapshot and used for lookups.

Regdomain stops on SIGINT and SIGTERM, waiting at most 3 seconds for running
requests to finish.

	usage: regdomain serve

# regdomain lookup

Prints the registrable domain for each URL or hostname.

The registrable domain is the public suffix plus one label, e.g. example.co.uk
for https://www.example.co.uk/. A scheme, path, port and leading www. are
removed before the lookup. For a name that is a public suffix itself, that name
is printed. For an empty or invalid name, an empty line is printed.

	usage: regdomain lookup [-list file | -index file] url ...
	  -icann
	    	with -list, only use rules from the icann section
	  -index string
	    	index file written by the build command to use, instead of using the latest snapshot
	  -list string
	    	public suffix list file to parse, instead of using the latest snapshot from the database of the configuration file

# regdomain suffix

Prints the public suffix for each hostname.

The public suffix is the part of the name under which domains can be
registered, e.g. co.uk for www.example.co.uk.

	usage: regdomain suffix [-list file | -index file] hostname ...
	  -icann
	    	with -list, only use rules from the icann section
	  -index string
	    	index file written by the build command to use, instead of using the latest snapshot
	  -list string
	    	public suffix list file to parse, instead of using the latest snapshot from the database of the configuration file

# regdomain build

Parses a public suffix list and writes its index in binary form.

The index can be used with the -index flag of the lookup and suffix commands.
Invalid rules in the list are skipped and logged.

	usage: regdomain build [-icann] public_suffix_list.dat index.bin
	  -icann
	    	only use rules from the icann section

# regdomain fetch

Fetches the public suffix list and writes it to stdout or a file.

The SHA-256 of the list is printed on stderr. The default URL is
https://publicsuffix.org/list/public_suffix_list.dat.

	usage: regdomain fetch [-o file] [url]
	  -maxsize int
	    	maximum size of list in bytes (default 16777216)
	  -o string
	    	file to write the list to instead of stdout

# regdomain refresh

Fetches the public suffix list once and stores a new snapshot if it changed.

The URL and other settings are read from the configuration file. This can be
used to initialize the database before starting serve, or from cron when not
running serve.

	usage: regdomain refresh

# regdomain snapshots

Lists the snapshots of the public suffix list index in the database.

	usage: regdomain snapshots

# regdomain config test

Parses and validates the configuration file.

If valid, the command exits with status 0. If not valid, all errors encountered
are printed.

	usage: regdomain config test

# regdomain config describe

Prints an annotated empty configuration for use as regdomain.conf.

The configuration file is read at startup. Regdomain has to be restarted for
changes to take effect.

This configuration file needs modifications to make it valid. For example, it
may contain unfinished list items.

	usage: regdomain config describe >regdomain.conf

# regdomain help

Prints help about matching commands.

If multiple commands match, they are listed along with the first line of their help text.
If a single command matches, its usage and full help text is printed.

	usage: regdomain help [command ...]

# regdomain version

Prints this regdomain version.

	usage: regdomain version
*/
package main

