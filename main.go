package main

import (
	"bytes"
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/mjl-/sconf"

	"github.com/mjl-/regdomain/config"
	"github.com/mjl-/regdomain/mlog"
	"github.com/mjl-/regdomain/orgdomain"
	"github.com/mjl-/regdomain/pslfetch"
	"github.com/mjl-/regdomain/pslstore"
	"github.com/mjl-/regdomain/pslupdate"
	"github.com/mjl-/regdomain/publicsuffix"
	"github.com/mjl-/regdomain/regvar"
)

func envString(k, def string) string {
	s := os.Getenv(k)
	if s == "" {
		return def
	}
	return s
}

var commands = []struct {
	cmd string
	fn  func(c *cmd)
}{
	{"serve", cmdServe},
	{"lookup", cmdLookup},
	{"suffix", cmdSuffix},
	{"build", cmdBuild},
	{"fetch", cmdFetch},
	{"refresh", cmdRefresh},
	{"snapshots", cmdSnapshots},
	{"config test", cmdConfigTest},
	{"config describe", cmdConfigDescribe},
	{"help", cmdHelp},
	{"version", cmdVersion},

	// Not listed.
	{"helpall", cmdHelpall},
}

var cmds []cmd

func init() {
	for _, xc := range commands {
		c := cmd{words: strings.Split(xc.cmd, " "), fn: xc.fn}
		cmds = append(cmds, c)
	}
}

type cmd struct {
	words []string
	fn    func(c *cmd)

	// Set before calling command.
	flag     *flag.FlagSet
	flagArgs []string
	_gather  bool // Set when using Parse to gather usage for a command.

	// Set by invoked command or Parse.
	unlisted bool   // If set, command is not listed until at least some words are matched from command.
	params   string // Arguments to command. Multiple lines possible.
	help     string // Additional explanation. First line is synopsis, the rest is only printed for an explicit help/usage for that command.
	args     []string

	log mlog.Log
}

func (c *cmd) Parse() []string {
	// To gather params and usage information, we just run the command but cause this
	// panic after the command has registered its flags and set its params and help
	// information. This is then caught and that info printed.
	if c._gather {
		panic("gather")
	}

	c.flag.Usage = c.Usage
	c.flag.Parse(c.flagArgs)
	c.args = c.flag.Args()
	return c.args
}

func (c *cmd) gather() {
	c.flag = flag.NewFlagSet("regdomain "+strings.Join(c.words, " "), flag.ExitOnError)
	c._gather = true
	defer func() {
		x := recover()
		// panic generated by Parse.
		if x != "gather" {
			panic(x)
		}
	}()
	c.fn(c)
}

func (c *cmd) makeUsage() string {
	var r strings.Builder
	cs := "regdomain " + strings.Join(c.words, " ")
	for i, line := range strings.Split(strings.TrimSpace(c.params), "\n") {
		s := ""
		if i == 0 {
			s = "usage:"
		}
		if line != "" {
			line = " " + line
		}
		fmt.Fprintf(&r, "%6s %s%s\n", s, cs, line)
	}
	c.flag.SetOutput(&r)
	c.flag.PrintDefaults()
	return r.String()
}

func (c *cmd) printUsage() {
	fmt.Fprint(os.Stderr, c.makeUsage())
	if c.help != "" {
		fmt.Fprint(os.Stderr, "\n"+c.help+"\n")
	}
}

func (c *cmd) Usage() {
	c.printUsage()
	os.Exit(2)
}

func cmdHelp(c *cmd) {
	c.params = "[command ...]"
	c.help = `Prints help about matching commands.

If multiple commands match, they are listed along with the first line of their help text.
If a single command matches, its usage and full help text is printed.
`
	args := c.Parse()
	if len(args) == 0 {
		c.Usage()
	}

	prefix := func(l, pre []string) bool {
		if len(pre) > len(l) {
			return false
		}
		return slices.Equal(pre, l[:len(pre)])
	}

	var partial []cmd
	for _, c := range cmds {
		if slices.Equal(c.words, args) {
			c.gather()
			fmt.Print(c.makeUsage())
			if c.help != "" {
				fmt.Print("\n" + c.help + "\n")
			}
			return
		} else if prefix(c.words, args) {
			partial = append(partial, c)
		}
	}
	if len(partial) == 0 {
		fmt.Fprintf(os.Stderr, "%s: unknown command\n", strings.Join(args, " "))
		os.Exit(2)
	}
	for _, c := range partial {
		c.gather()
		line := "regdomain " + strings.Join(c.words, " ")
		fmt.Printf("%s\n", line)
		if c.help != "" {
			fmt.Printf("\t%s\n", strings.Split(c.help, "\n")[0])
		}
	}
}

func cmdHelpall(c *cmd) {
	c.unlisted = true
	c.help = `Print all detailed usage and help information for all listed commands.

Used to generate documentation.
`
	args := c.Parse()
	if len(args) != 0 {
		c.Usage()
	}

	n := 0
	for _, c := range cmds {
		c.gather()
		if c.unlisted {
			continue
		}
		if n > 0 {
			fmt.Fprintf(os.Stderr, "\n")
		}
		n++

		fmt.Fprintf(os.Stderr, "# regdomain %s\n\n", strings.Join(c.words, " "))
		if c.help != "" {
			fmt.Fprintln(os.Stderr, c.help+"\n")
		}
		s := c.makeUsage()
		s = "\t" + strings.ReplaceAll(s, "\n", "\n\t")
		fmt.Fprintln(os.Stderr, s)
	}
}

func usage(l []cmd, unlisted bool) {
	var lines []string
	if !unlisted {
		lines = append(lines, "regdomain [-config regdomain.conf] [-loglevel level] [-logfmt] ...")
	}
	for _, c := range l {
		c.gather()
		if c.unlisted && !unlisted {
			continue
		}
		for _, line := range strings.Split(c.params, "\n") {
			x := append([]string{"regdomain"}, c.words...)
			if line != "" {
				x = append(x, line)
			}
			lines = append(lines, strings.Join(x, " "))
		}
	}
	for i, line := range lines {
		pre := "       "
		if i == 0 {
			pre = "usage: "
		}
		fmt.Fprintln(os.Stderr, pre+line)
	}
	os.Exit(2)
}

var configPath string
var loglevel string // Empty will be interpreted as info, except by serve that uses the config file.

// mustLoadConfig parses the config file, exiting on errors. Log levels from the
// config file are only used by serve, other commands use the level from the
// command-line.
func mustLoadConfig(useConfigLogLevels bool) *config.Config {
	conf, errs := config.ParseFile(configPath)
	if len(errs) > 1 {
		log.Printf("multiple errors:")
		for _, err := range errs {
			log.Printf("%s", err)
		}
		os.Exit(1)
	} else if len(errs) == 1 {
		log.Fatalf("%s", errs[0])
	}
	if useConfigLogLevels && loglevel == "" {
		mlog.SetConfig(conf.Static.Log)
	}
	return conf
}

func main() {
	log.SetFlags(0)

	flag.StringVar(&configPath, "config", envString("REGDOMAINCONF", "regdomain.conf"), "configuration file, defaults to $REGDOMAINCONF with a fallback to regdomain.conf")
	flag.StringVar(&loglevel, "loglevel", "", "if non-empty, this log level is set early in startup")
	flag.BoolVar(&mlog.Logfmt, "logfmt", false, "write log lines in logfmt format")

	var cpuprofile, memprofile, tracefile string
	flag.StringVar(&cpuprofile, "cpuprof", "", "store cpu profile to file")
	flag.StringVar(&memprofile, "memprof", "", "store mem profile to file")
	flag.StringVar(&tracefile, "trace", "", "store execution trace to file")

	flag.Usage = func() { usage(cmds, false) }
	flag.Parse()
	args := flag.Args()
	if len(args) == 0 {
		usage(cmds, false)
	}

	defer startProfiling(cpuprofile, memprofile, tracefile)()

	ll := loglevel
	if ll == "" {
		ll = "info"
	}
	if level, ok := mlog.Levels[ll]; ok {
		mlog.SetConfig(map[string]slog.Level{"": level})
		// note: SetConfig may be called again when serve loads the config.
	} else {
		log.Fatalf("unknown loglevel %q", loglevel)
	}

	var partial []cmd
next:
	for _, c := range cmds {
		for i, w := range c.words {
			if i >= len(args) || w != args[i] {
				if i > 0 {
					partial = append(partial, c)
				}
				continue next
			}
		}
		c.flag = flag.NewFlagSet("regdomain "+strings.Join(c.words, " "), flag.ExitOnError)
		c.flagArgs = args[len(c.words):]
		c.log = mlog.New(strings.Join(c.words, ""), nil)
		c.fn(&c)
		return
	}
	if len(partial) > 0 {
		usage(partial, true)
	}
	usage(cmds, false)
}

func xcheckf(err error, format string, args ...any) {
	if err == nil {
		return
	}
	msg := fmt.Sprintf(format, args...)
	log.Fatalf("%s: %s", msg, err)
}

func cmdVersion(c *cmd) {
	c.help = "Prints this regdomain version."
	if len(c.Parse()) != 0 {
		c.Usage()
	}
	fmt.Println(regvar.Version)
}

func cmdConfigTest(c *cmd) {
	c.help = `Parses and validates the configuration file.

If valid, the command exits with status 0. If not valid, all errors encountered
are printed.
`
	args := c.Parse()
	if len(args) != 0 {
		c.Usage()
	}

	_, errs := config.ParseFile(configPath)
	if len(errs) > 1 {
		log.Printf("multiple errors:")
		for _, err := range errs {
			log.Printf("%s", err)
		}
		os.Exit(1)
	} else if len(errs) == 1 {
		log.Fatalf("%s", errs[0])
	}
	fmt.Println("config OK")
}

func cmdConfigDescribe(c *cmd) {
	c.params = ">regdomain.conf"
	c.help = `Prints an annotated empty configuration for use as regdomain.conf.

The configuration file is read at startup. Regdomain has to be restarted for
changes to take effect.

This configuration file needs modifications to make it valid. For example, it
may contain unfinished list items.
`
	if len(c.Parse()) != 0 {
		c.Usage()
	}

	var sc config.Static
	err := sconf.Describe(os.Stdout, &sc)
	xcheckf(err, "describing config")
}

// indexFlags are the flags for commands that need an index.
type indexFlags struct {
	list      string
	index     string
	icannOnly bool
}

func (f *indexFlags) register(c *cmd) {
	c.flag.StringVar(&f.list, "list", "", "public suffix list file to parse, instead of using the latest snapshot from the database of the configuration file")
	c.flag.StringVar(&f.index, "index", "", "index file written by the build command to use, instead of using the latest snapshot")
	c.flag.BoolVar(&f.icannOnly, "icann", false, "with -list, only use rules from the icann section")
}

// xresolver returns a resolver with the index from the flags.
func (f *indexFlags) xresolver(c *cmd) *orgdomain.Resolver {
	var l orgdomain.Loaded
	switch {
	case f.list != "" && f.index != "":
		c.Usage()
	case f.list != "":
		file, err := os.Open(f.list)
		xcheckf(err, "open list")
		defer file.Close()
		x, err := publicsuffix.ParseList(c.log.Logger, file, f.icannOnly)
		xcheckf(err, "parsing list")
		l = orgdomain.Loaded{Index: x, Source: f.list, ICANNOnly: f.icannOnly}
	case f.index != "":
		buf, err := os.ReadFile(f.index)
		xcheckf(err, "reading index")
		x, err := publicsuffix.Load(buf)
		xcheckf(err, "loading index")
		l = orgdomain.Loaded{Index: x, Source: f.index}
	default:
		conf := mustLoadConfig(false)
		ctx := context.Background()
		store, err := pslstore.Open(ctx, c.log.Logger, conf.DataDirPath("psl.db"))
		xcheckf(err, "open snapshot database")
		defer store.Close()
		sn, err := store.Latest(ctx, conf.Static.PublicSuffixList.ICANNOnly)
		xcheckf(err, "latest snapshot (hint: run regdomain refresh, or use -list)")
		x, err := sn.Load()
		xcheckf(err, "loading snapshot")
		l = orgdomain.Loaded{Index: x, Source: sn.Source, Time: sn.Fetched, SHA256: sn.SHA256, ICANNOnly: sn.ICANNOnly}
	}
	r := &orgdomain.Resolver{}
	r.Swap(&l)
	return r
}

func cmdLookup(c *cmd) {
	c.params = "[-list file | -index file] url ..."
	c.help = `Prints the registrable domain for each URL or hostname.

The registrable domain is the public suffix plus one label, e.g. example.co.uk
for https://www.example.co.uk/. A scheme, path, port and leading www. are
removed before the lookup. For a name that is a public suffix itself, that name
is printed. For an empty or invalid name, an empty line is printed.
`
	var f indexFlags
	f.register(c)
	args := c.Parse()
	if len(args) == 0 {
		c.Usage()
	}

	r := f.xresolver(c)
	for _, url := range args {
		d, err := r.RegistrableDomain(c.log.Logger, url)
		xcheckf(err, "lookup")
		fmt.Println(d)
	}
}

func cmdSuffix(c *cmd) {
	c.params = "[-list file | -index file] hostname ..."
	c.help = `Prints the public suffix for each hostname.

The public suffix is the part of the name under which domains can be
registered, e.g. co.uk for www.example.co.uk.
`
	var f indexFlags
	f.register(c)
	args := c.Parse()
	if len(args) == 0 {
		c.Usage()
	}

	r := f.xresolver(c)
	for _, host := range args {
		s, err := r.PublicSuffix(orgdomain.Normalize(host))
		xcheckf(err, "lookup")
		fmt.Println(s)
	}
}

func cmdBuild(c *cmd) {
	c.params = "[-icann] public_suffix_list.dat index.bin"
	c.help = `Parses a public suffix list and writes its index in binary form.

The index can be used with the -index flag of the lookup and suffix commands.
Invalid rules in the list are skipped and logged.
`
	var icannOnly bool
	c.flag.BoolVar(&icannOnly, "icann", false, "only use rules from the icann section")
	args := c.Parse()
	if len(args) != 2 {
		c.Usage()
	}

	buf, err := os.ReadFile(args[0])
	xcheckf(err, "reading list")
	x, err := publicsuffix.ParseList(c.log.Logger, bytes.NewReader(buf), icannOnly)
	xcheckf(err, "parsing list")
	err = os.WriteFile(args[1], publicsuffix.Save(x), 0660)
	xcheckf(err, "writing index")
	log.Printf("%d rules", x.Len())
}

func cmdFetch(c *cmd) {
	c.params = "[-o file] [url]"
	c.help = `Fetches the public suffix list and writes it to stdout or a file.

The SHA-256 of the list is printed on stderr. The default URL is
https://publicsuffix.org/list/public_suffix_list.dat.
`
	var output string
	var maxSize int64
	c.flag.StringVar(&output, "o", "", "file to write the list to instead of stdout")
	c.flag.Int64Var(&maxSize, "maxsize", pslfetch.DefaultMaxSize, "maximum size of list in bytes")
	args := c.Parse()
	if len(args) > 1 {
		c.Usage()
	}
	url := pslfetch.DefaultURL
	if len(args) == 1 {
		url = args[0]
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	l, err := pslfetch.Fetch(ctx, c.log.Logger, nil, url, maxSize)
	xcheckf(err, "fetching list")
	if output != "" {
		err = os.WriteFile(output, l.Data, 0660)
	} else {
		_, err = os.Stdout.Write(l.Data)
	}
	xcheckf(err, "writing list")
	log.Printf("sha256 %s, %d bytes", l.SHA256, len(l.Data))
}

func cmdRefresh(c *cmd) {
	c.help = `Fetches the public suffix list once and stores a new snapshot if it changed.

The URL and other settings are read from the configuration file. This can be
used to initialize the database before starting serve, or from cron when not
running serve.
`
	args := c.Parse()
	if len(args) != 0 {
		c.Usage()
	}

	conf := mustLoadConfig(false)
	ctx := context.Background()
	store, err := pslstore.Open(ctx, c.log.Logger, conf.DataDirPath("psl.db"))
	xcheckf(err, "open snapshot database")
	defer store.Close()

	u := &pslupdate.Updater{Config: conf.Updater(), Resolver: &orgdomain.Resolver{}, Store: store}
	_, err = u.Warm(ctx, c.log.Logger)
	xcheckf(err, "loading current snapshot")
	err = u.Refresh(ctx, c.log.Logger)
	xcheckf(err, "refresh")
	cur := u.Resolver.Current()
	fmt.Printf("%d rules, sha256 %s, from %s\n", cur.Index.Len(), cur.SHA256, cur.Source)
}

func cmdSnapshots(c *cmd) {
	c.help = `Lists the snapshots of the public suffix list index in the database.`
	args := c.Parse()
	if len(args) != 0 {
		c.Usage()
	}

	conf := mustLoadConfig(false)
	ctx := context.Background()
	store, err := pslstore.Open(ctx, c.log.Logger, conf.DataDirPath("psl.db"))
	xcheckf(err, "open snapshot database")
	defer store.Close()
	l, err := store.List(ctx)
	xcheckf(err, "listing snapshots")
	for _, sn := range l {
		sections := "all"
		if sn.ICANNOnly {
			sections = "icann"
		}
		fmt.Printf("%d\t%s\t%d rules\t%s\t%s\t%s\n", sn.ID, sn.Fetched.Format(time.RFC3339), sn.Rules, sections, sn.SHA256, sn.Source)
	}
}
