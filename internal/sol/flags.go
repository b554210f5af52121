package sol

import "flag"

// Flags holds the parsed CLI flag values described in spec.md §6. Zero
// values mean "not set on the command line" for MergeFlags' purposes,
// except LogLevel which uses the empty string.
type Flags struct {
	RTMPPort    int
	HTTPFLVPort int
	WSH264Port  int
	WSFmp4Port  int
	PlayerPort  int
	LogLevel    string
	ConfigPath  string
	Version     bool
}

// ParseFlags registers and parses the standard flag set against args
// (pass os.Args[1:]).
func ParseFlags(args []string) (Flags, error) {
	fs := flag.NewFlagSet("sol", flag.ContinueOnError)

	var f Flags
	fs.IntVar(&f.RTMPPort, "rtmp-port", 0, "RTMP ingest+playback listener port (0 keeps the config/default value)")
	fs.IntVar(&f.HTTPFLVPort, "http-flv-port", 0, "HTTP-FLV delivery port (0 disables)")
	fs.IntVar(&f.WSH264Port, "ws-h264-port", 0, "WebSocket raw-H.264 delivery port (0 disables)")
	fs.IntVar(&f.WSFmp4Port, "ws-fmp4-port", 0, "WebSocket fMP4 delivery port (0 disables)")
	fs.IntVar(&f.PlayerPort, "http-player-port", 0, "static player HTML port (0 disables)")
	fs.StringVar(&f.LogLevel, "log-level", "", "log level: debug, info, warn, error")
	fs.StringVar(&f.ConfigPath, "config", "configs/default.yaml", "path to an optional YAML config file")
	fs.BoolVar(&f.Version, "V", false, "print version and exit")
	fs.BoolVar(&f.Version, "version", false, "print version and exit")

	if err := fs.Parse(args); err != nil {
		return Flags{}, err
	}
	return f, nil
}
