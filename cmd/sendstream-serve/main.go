// Command sendstream-serve serves a directory tree using the sendstream
// response engine: conditional GET, byte ranges, and pre-compressed
// variants all handled the same way a library consumer would wire them up.
package main

import (
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"regexp"
	"strings"

	"github.com/lmittmann/tint"
	"github.com/spf13/pflag"

	"github.com/sendstream-go/sendstream/encoding"
	"github.com/sendstream-go/sendstream/fsstorage"
	"github.com/sendstream-go/sendstream/internal/pflagx"
	"github.com/sendstream-go/sendstream/response"
)

var (
	EnvPrefix   = "SENDSTREAM_SERVE_"
	Addr        = pflag.StringP("addr", "a", ":8080", "listen address")
	Root        = pflag.StringP("root", "r", ".", "directory to serve")
	MaxAge      = pflag.DurationP("max-age", "m", 0, "Cache-Control max-age")
	Precompress = pflag.BoolP("precompress", "p", false, "look for .gz/.br siblings of every file")
	LogLevel    = pflagx.LevelP("log-level", "L", slog.LevelInfo, "log level")
	LogJSON     = pflag.Bool("log-json", false, "use json logs")
	Help        = pflag.BoolP("help", "h", false, "show this help text")
)

func main() {
	if val, ok := os.LookupEnv("PORT"); ok {
		if err := pflag.Set("addr", ":"+val); err != nil {
			panic(err)
		}
	}
	pflagx.ParseEnv(EnvPrefix)
	pflag.Parse()

	if *Help || pflag.NArg() != 0 {
		fmt.Printf("usage: %s [options]\n%s", os.Args[0], pflag.CommandLine.FlagUsages())
		if *Help {
			return
		}
		os.Exit(2)
	}

	if *LogJSON {
		slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: LogLevel,
		})))
	} else {
		slog.SetDefault(slog.New(tint.NewHandler(os.Stdout, &tint.Options{
			Level: LogLevel,
		})))
	}
	slog.SetLogLoggerLevel(LogLevel.Level())

	if err := run(); err != nil {
		slog.Error("failed to run server", "error", err)
		os.Exit(1)
	}
}

func run() error {
	var opts []fsstorage.Option
	if *Precompress {
		opts = append(opts, fsstorage.WithEncodings([]fsstorage.EncodingMapping{
			{
				Match: regexp.MustCompile(`(.+)$`),
				Variants: []encoding.Candidate{
					{Name: "br", Order: 0, Template: "$1.br"},
					{Name: "gzip", Order: 1, Template: "$1.gz"},
				},
			},
		}))
	}
	store := fsstorage.New(*Root, opts...)
	builder := response.NewBuilder(store)

	cacheControl := response.Override{}
	if *MaxAge > 0 {
		cacheControl = response.OverrideValue(fmt.Sprintf("public, max-age=%d", int(MaxAge.Seconds())))
	}

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reference := resolveIndex(r.URL.EscapedPath())
		p, err := builder.Prepare(r.Context(), reference, response.Request{
			Method:  r.Method,
			Headers: r.Header,
		}, response.Options{
			CacheControl: cacheControl,
		})
		if err != nil {
			slog.Error("prepare failed", "path", r.URL.Path, "error", err)
			http.Error(w, "internal server error", http.StatusInternalServerError)
			return
		}
		if p.Kind == response.KindNotFound {
			slog.Debug("not found", "path", r.URL.Path, "error", p.Err)
		}
		if err := p.Send(w, response.DefaultSendOptions()); err != nil {
			slog.Warn("send failed", "path", r.URL.Path, "error", err)
		}
	})

	slog.Info("http: listening", "addr", *Addr, "root", *Root)
	return http.ListenAndServe(*Addr, handler)
}

// resolveIndex appends index.html to any path ending in "/", the way a
// static file server conventionally resolves directory requests; fsstorage
// itself always rejects a bare trailing slash as a path error.
func resolveIndex(p string) string {
	if strings.HasSuffix(p, "/") {
		return p + "index.html"
	}
	return p
}
