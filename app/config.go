package app

import (
	"crypto/tls"
	"errors"
	"flag"
	"fmt"
	"io"
	"io/ioutil"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/moontrade/mersenne/twister"
	"github.com/tidwall/gjson"
)

func versline(conf Config) string {
	sha := ""
	if conf.GitSHA != "" {
		sha = " (" + conf.GitSHA + ")"
	}
	return fmt.Sprintf("%s version %s%s", conf.Name, conf.Version, sha)
}

const usage = `{{NAME}} version: {{VERSION}} ({{GITSHA}})

Usage: {{NAME}} [-n id] [-a addr] [options]

Basic options:
  -v               : display version
  -h               : display help, this screen
  -a addr          : bind to address  (default: 127.0.0.1:11001)
  -n id            : node ID  (default: 1)
  -d dir           : data directory  (default: data)
  -j addr          : leader address of a cluster to join
  -l level         : log level  (default: info) [debug,verb,info,warn,silent]
  --config path    : JSON config file, flags override its values

Generator options:
  --seed value     : seed for new engines, decimal or 0x hex  (default: 0xDEADBEEF)
  --mode mode      : session mode for new connections  (default: private)
                     [private,shared]
  --reseed dur     : have the leader reseed the shared engine from the
                     operating system at this interval  (default: 0, off)

Security options:
  --tls-cert path  : path to TLS certificate
  --tls-key path   : path to TLS private key
  --auth auth      : cluster authorization, shared by all servers and clients

Networking options:

Advanced options:
  --snapshot-codec : snapshot compression  (default: snappy)
                     [none,snappy,lz4,zstd]
  --raft-timeout   : raft heartbeat and election timeout  (default: 2s)
  --try-errors     : return TRY errors instead of MOVED
  --restore path   : restore a raft machine from a snapshot file. This will
                     start a brand new single-node cluster using the snapshot as
                     initial data. The other nodes must be re-joined. This
                     operation is ignored when a data directory already exists.
                     Cannot be used with -j flag.
  --init-run-quit  : initialize a bootstrap operation and then quit.
`

// Mode selects which engine a connection draws from.
type Mode int

const (
	// Private gives every connection its own engine.
	Private Mode = iota
	// Shared routes draws through the raft log to one cluster wide engine.
	Shared
)

func (m Mode) String() string {
	if m == Shared {
		return "shared"
	}
	return "private"
}

// ParseMode parses "private" or "shared".
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(s) {
	case "private":
		return Private, nil
	case "shared":
		return Shared, nil
	}
	return 0, fmt.Errorf("invalid mode: %s", s)
}

// ParseSeed parses a decimal or 0x prefixed hexadecimal 32-bit seed.
func ParseSeed(s string) (uint32, error) {
	v, err := strconv.ParseUint(s, 0, 32)
	if err != nil {
		return 0, ErrSyntax
	}
	return uint32(v), nil
}

// Config is the configuration for managing the behavior of the application.
// This must be fill out prior and then passed to the Main() function.
type Config struct {
	// Name gives the server application a name. Default "mersenned"
	Name string

	// Version of the application. Default "0.0.0"
	Version string

	// GitSHA of the application.
	GitSHA string

	// Flag is used to manage the application startup flags.
	Flag struct {
		// Custom tells Main to not automatically parse the application startup
		// flags. When set it is up to the user to parse the os.Args manually
		// or with a different library.
		Custom bool
		// Usage is an optional function that allows for altering the usage
		// message.
		Usage func(usage string) string
		// PreParse is an optional function that allows for adding command line
		// flags before the user flags are parsed.
		PreParse func()
		// PostParse is an optional function that fires after user flags are
		// parsed.
		PostParse func()
	}

	// DataDirReady is an optional callback function that fires containing the
	// path to the directory where the snapshots are stored.
	DataDirReady func(dir string)

	// ServerReady is an optional callback function that fires when the server
	// socket is listening and is ready to accept incoming connections. The
	// network address, auth, and tls-config are provided to allow for
	// background connections to be made to self, if desired.
	ServerReady func(addr, auth string, tlscfg *tls.Config)

	// ConnOpened is an optional callback function that fires when a new
	// network connection was opened on this machine. You can accept or deny
	// the connection, and optionally provide a client-specific context that
	// stick around until the connection is closed with ConnClosed.
	ConnOpened func(addr string) (context interface{}, accept bool)

	// ConnClosed is an optional callback function that fires when a network
	// connection has been closed on this machine.
	ConnClosed func(context interface{}, addr string)

	ConfigPath     string        // default ""
	BackupPath     string        // default ""
	NodeID         string        // default "1"
	Addr           string        // default "127.0.0.1:11001"
	DataDir        string        // default "data"
	LogOutput      io.Writer     // default os.Stderr
	LogLevel       string        // default "info"
	JoinAddr       string        // default ""
	Seed           uint32        // default 0xDEADBEEF
	Mode           Mode          // default Private
	SnapshotCodec  Codec         // default CodecSnappy
	ReseedInterval time.Duration // default 0, off
	RaftTimeout    time.Duration // default 2s
	MaxPool        int           // default 8
	TLSCertPath    string        // default ""
	TLSKeyPath     string        // default ""
	Auth           string        // default ""
	TryErrors      bool          // default false (return TRY instead of MOVED)
	InitRunQuit    bool          // default false

	seedSet  bool
	codecSet bool
}

func (conf *Config) def() {
	if conf.Addr == "" {
		conf.Addr = "127.0.0.1:11001"
	}
	if conf.Version == "" {
		conf.Version = "0.0.0"
	}
	if conf.Name == "" {
		conf.Name = "mersenned"
	}
	if conf.NodeID == "" {
		conf.NodeID = "1"
	}
	if conf.DataDir == "" {
		conf.DataDir = "data"
	}
	if conf.LogLevel == "" {
		conf.LogLevel = "info"
	}
	if conf.Seed == 0 && !conf.seedSet {
		conf.Seed = twister.DefaultSeed
	}
	if conf.SnapshotCodec == CodecNone && !conf.codecSet {
		conf.SnapshotCodec = CodecSnappy
	}
	if conf.RaftTimeout == 0 {
		conf.RaftTimeout = 2 * time.Second
	}
	if conf.MaxPool == 0 {
		conf.MaxPool = 8
	}
}

// SetSeed sets the seed for new engines. Use it to configure a zero seed,
// which def would otherwise replace with the default.
func (conf *Config) SetSeed(seed uint32) {
	conf.Seed = seed
	conf.seedSet = true
}

// SetSnapshotCodec sets the snapshot codec, including CodecNone.
func (conf *Config) SetSnapshotCodec(c Codec) {
	conf.SnapshotCodec = c
	conf.codecSet = true
}

// configPathFromArgs finds the value of a -config or --config flag.
func configPathFromArgs(args []string) string {
	for i := 0; i < len(args); i++ {
		arg := args[i]
		if !strings.HasPrefix(arg, "-") {
			continue
		}
		name := strings.TrimLeft(arg, "-")
		if strings.HasPrefix(name, "config=") {
			return name[len("config="):]
		}
		if name == "config" && i+1 < len(args) {
			return args[i+1]
		}
	}
	return ""
}

// loadConfigFile applies the fields of a JSON config file to conf. Keys match
// the long flag names.
func loadConfigFile(conf *Config, path string) error {
	data, err := ioutil.ReadFile(path)
	if err != nil {
		return err
	}
	if !gjson.ValidBytes(data) {
		return fmt.Errorf("%s: invalid json", path)
	}
	var ferr error
	gjson.ParseBytes(data).ForEach(func(key, value gjson.Result) bool {
		switch key.String() {
		case "name":
			conf.Name = value.String()
		case "addr":
			conf.Addr = value.String()
		case "node_id":
			conf.NodeID = value.String()
		case "data_dir":
			conf.DataDir = value.String()
		case "join":
			conf.JoinAddr = value.String()
		case "log_level":
			conf.LogLevel = value.String()
		case "seed":
			if value.Type == gjson.Number {
				conf.SetSeed(uint32(value.Uint()))
			} else {
				var seed uint32
				if seed, ferr = ParseSeed(value.String()); ferr == nil {
					conf.SetSeed(seed)
				}
			}
		case "mode":
			conf.Mode, ferr = ParseMode(value.String())
		case "snapshot_codec":
			var c Codec
			if c, ferr = ParseCodec(value.String()); ferr == nil {
				conf.SetSnapshotCodec(c)
			}
		case "reseed":
			conf.ReseedInterval, ferr = time.ParseDuration(value.String())
		case "raft_timeout":
			conf.RaftTimeout, ferr = time.ParseDuration(value.String())
		case "max_pool":
			conf.MaxPool = int(value.Int())
		case "tls_cert":
			conf.TLSCertPath = value.String()
		case "tls_key":
			conf.TLSKeyPath = value.String()
		case "auth":
			conf.Auth = value.String()
		case "try_errors":
			conf.TryErrors = value.Bool()
		case "restore":
			conf.BackupPath = value.String()
		default:
			ferr = fmt.Errorf("unknown config key '%s'", key.String())
		}
		if ferr != nil {
			ferr = fmt.Errorf("%s: %s: %w", path, key.String(), ferr)
			return false
		}
		return true
	})
	return ferr
}

// validate checks combinations that flags alone cannot express.
func (conf *Config) validate() error {
	if conf.TLSCertPath != "" && conf.TLSKeyPath == "" {
		return errors.New("flag --tls-key cannot be empty when --tls-cert is provided")
	} else if conf.TLSCertPath == "" && conf.TLSKeyPath != "" {
		return errors.New("flag --tls-cert cannot be empty when --tls-key is provided")
	}
	if conf.BackupPath != "" && conf.JoinAddr != "" {
		return errors.New("flag --restore cannot be used with -j")
	}
	if conf.ReseedInterval < 0 {
		return errors.New("flag --reseed cannot be negative")
	}
	return nil
}

func confInit(conf *Config) {
	if !conf.Flag.Custom {
		if path := configPathFromArgs(os.Args[1:]); path != "" {
			conf.ConfigPath = path
		}
	}
	if conf.ConfigPath != "" {
		if err := loadConfigFile(conf, conf.ConfigPath); err != nil {
			fmt.Fprintf(os.Stderr, "%s\n", err)
			os.Exit(1)
		}
	}
	conf.def()
	if conf.Flag.Custom {
		return
	}
	flag.Usage = func() {
		w := os.Stderr
		for _, arg := range os.Args {
			if arg == "-h" || arg == "--help" {
				w = os.Stdout
				break
			}
		}
		s := usage
		s = strings.Replace(s, "{{VERSION}}", conf.Version, -1)
		if conf.GitSHA == "" {
			s = strings.Replace(s, " ({{GITSHA}})", "", -1)
			s = strings.Replace(s, "{{GITSHA}}", "", -1)
		} else {
			s = strings.Replace(s, "{{GITSHA}}", conf.GitSHA, -1)
		}
		s = strings.Replace(s, "{{NAME}}", conf.Name, -1)
		if conf.Flag.Usage != nil {
			s = conf.Flag.Usage(s)
		}
		s = strings.Replace(s, "{{USAGE}}", "", -1)
		w.Write([]byte(s))
		if w == os.Stdout {
			os.Exit(0)
		}
	}
	var vers bool
	var seed, mode, codec, testNode string
	var ignored string
	flag.BoolVar(&vers, "v", false, "")
	flag.StringVar(&ignored, "config", conf.ConfigPath, "")
	flag.StringVar(&conf.Addr, "a", conf.Addr, "")
	flag.StringVar(&conf.NodeID, "n", conf.NodeID, "")
	flag.StringVar(&conf.DataDir, "d", conf.DataDir, "")
	flag.StringVar(&conf.JoinAddr, "j", conf.JoinAddr, "")
	flag.StringVar(&conf.LogLevel, "l", conf.LogLevel, "")
	flag.StringVar(&seed, "seed", fmt.Sprintf("0x%08X", conf.Seed), "")
	flag.StringVar(&mode, "mode", conf.Mode.String(), "")
	flag.DurationVar(&conf.ReseedInterval, "reseed", conf.ReseedInterval, "")
	flag.StringVar(&codec, "snapshot-codec", conf.SnapshotCodec.String(), "")
	flag.DurationVar(&conf.RaftTimeout, "raft-timeout", conf.RaftTimeout, "")
	flag.StringVar(&conf.TLSCertPath, "tls-cert", conf.TLSCertPath, "")
	flag.StringVar(&conf.TLSKeyPath, "tls-key", conf.TLSKeyPath, "")
	flag.StringVar(&conf.BackupPath, "restore", conf.BackupPath, "")
	flag.StringVar(&conf.Auth, "auth", conf.Auth, "")
	flag.StringVar(&testNode, "t", "", "")
	flag.BoolVar(&conf.TryErrors, "try-errors", conf.TryErrors, "")
	flag.BoolVar(&conf.InitRunQuit, "init-run-quit", conf.InitRunQuit, "")
	if conf.Flag.PreParse != nil {
		conf.Flag.PreParse()
	}
	flag.Parse()
	if vers {
		fmt.Printf("%s\n", versline(*conf))
		os.Exit(0)
	}
	v, err := ParseSeed(seed)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid --seed: '%s'\n", seed)
		os.Exit(1)
	}
	conf.SetSeed(v)
	if conf.Mode, err = ParseMode(mode); err != nil {
		fmt.Fprintf(os.Stderr, "invalid --mode: '%s'\n", mode)
		os.Exit(1)
	}
	c, err := ParseCodec(codec)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid --snapshot-codec: '%s'\n", codec)
		os.Exit(1)
	}
	conf.SetSnapshotCodec(c)
	switch testNode {
	case "1", "2", "3", "4", "5", "6", "7", "8", "9":
		if conf.Addr == "" {
			conf.Addr = ":1100" + testNode
		} else {
			conf.Addr = conf.Addr[:len(conf.Addr)-1] + testNode
		}
		conf.NodeID = testNode
		if testNode != "1" {
			conf.JoinAddr = conf.Addr[:len(conf.Addr)-1] + "1"
		}
	case "":
	default:
		fmt.Fprintf(os.Stderr, "invalid usage of test flag -t\n")
		os.Exit(1)
	}
	if err := conf.validate(); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", err)
		os.Exit(1)
	}
	if conf.Flag.PostParse != nil {
		conf.Flag.PostParse()
	}
}
