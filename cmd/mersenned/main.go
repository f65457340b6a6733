package main

import "github.com/moontrade/mersenne/app"

// set with -ldflags "-X main.version=... -X main.gitsha=..."
var (
	version = "0.1.0"
	gitsha  = ""
)

func main() {
	var conf app.Config
	conf.Name = "mersenned"
	conf.Version = version
	conf.GitSHA = gitsha
	app.Main(conf)
}
