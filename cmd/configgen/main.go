package main

import (
	"flag"
	"log"
	"os"
	"path/filepath"

	"github.com/danmuck/trackerctl/internal/config"
)

// templateFiles maps each config kind to the filename it gets when
// generating into a directory.
var templateFiles = map[string]string{
	"tracker":   "trackerctl.toml",
	"simulator": "simctl.toml",
	"bodies":    "bodies.yaml",
}

func main() {
	kind := flag.String("kind", "all", "config kind: tracker|simulator|bodies|all")
	out := flag.String("out", ".", "output directory for generated config files")
	output := flag.String("output", "", "explicit output path (single kind only)")
	force := flag.Bool("force", false, "overwrite existing config files")
	flag.Parse()

	kinds := []string{"tracker", "simulator", "bodies"}
	if *kind != "all" {
		if _, ok := templateFiles[*kind]; !ok {
			log.Fatalf("unknown kind: %s", *kind)
		}
		kinds = []string{*kind}
	}

	if *output != "" {
		if len(kinds) != 1 {
			log.Fatalf("-output requires a single -kind")
		}
		if err := config.WriteTemplate(*output, kinds[0], *force); err != nil {
			log.Fatal(err)
		}
		log.Printf("Wrote %s config template to %s", kinds[0], *output)
		return
	}

	if err := os.MkdirAll(*out, 0o755); err != nil {
		log.Fatal(err)
	}
	for _, k := range kinds {
		target := filepath.Join(*out, templateFiles[k])
		if err := config.WriteTemplate(target, k, *force); err != nil {
			log.Fatal(err)
		}
		log.Printf("Wrote %s config template to %s", k, target)
	}
}
