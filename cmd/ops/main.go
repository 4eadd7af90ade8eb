package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/ImmemorConsultrixContrarie/The-Rat-and-the-Time/internal/config"
	"github.com/ImmemorConsultrixContrarie/The-Rat-and-the-Time/internal/ops"
	"github.com/ImmemorConsultrixContrarie/The-Rat-and-the-Time/internal/storage"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(2)
	}

	var err error
	switch os.Args[1] {
	case "export":
		err = cmdExport(os.Args[2:])
	case "import":
		err = cmdImport(os.Args[2:])
	case "copy":
		err = cmdCopy(os.Args[2:])
	case "drill":
		err = cmdDrill(os.Args[2:])
	default:
		printUsage()
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s failed: %v\n", os.Args[1], err)
		os.Exit(1)
	}
}

func storeFlags(fs *flag.FlagSet) (configPath, driver, dataDir *string) {
	configPath = fs.String("config", "rat_and_time.yml", "path to YAML config")
	driver = fs.String("store", "", "storage driver override: sqlite, file or memory")
	dataDir = fs.String("data-dir", "", "data directory override")
	return
}

// resolveConfig loads the config and applies the command line store overrides.
func resolveConfig(configPath, driver, dataDir string) (*config.Config, error) {
	cfg, err := config.Resolve(configPath)
	if err != nil {
		return nil, err
	}
	if driver != "" {
		cfg.Storage.Driver = driver
	}
	if dataDir != "" {
		cfg.Storage.DataDir = dataDir
	}
	cfg.Storage.ApplyDefaults()
	return cfg, nil
}

func cmdExport(args []string) error {
	fs := flag.NewFlagSet("export", flag.ContinueOnError)
	configPath, driver, dataDir := storeFlags(fs)
	out := fs.String("out", "", "output file (default stdout)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	cfg, err := resolveConfig(*configPath, *driver, *dataDir)
	if err != nil {
		return err
	}
	repo, closeRepo, err := storage.Open(cfg.Storage)
	if err != nil {
		return err
	}
	defer closeRepo()

	var w io.Writer = os.Stdout
	if *out != "" {
		f, err := os.Create(*out)
		if err != nil {
			return err
		}
		defer f.Close()
		w = f
	}
	return ops.Export(context.Background(), repo, w)
}

func cmdImport(args []string) error {
	fs := flag.NewFlagSet("import", flag.ContinueOnError)
	configPath, driver, dataDir := storeFlags(fs)
	in := fs.String("in", "", "input file (default stdin)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	cfg, err := resolveConfig(*configPath, *driver, *dataDir)
	if err != nil {
		return err
	}
	repo, closeRepo, err := storage.Open(cfg.Storage)
	if err != nil {
		return err
	}
	defer closeRepo()

	var r io.Reader = os.Stdin
	if *in != "" {
		f, err := os.Open(*in)
		if err != nil {
			return err
		}
		defer f.Close()
		r = f
	}
	st, err := ops.Import(context.Background(), repo, r)
	if err != nil {
		return err
	}
	fmt.Printf("imported %d entities\n", len(st.Entities))
	return nil
}

func cmdCopy(args []string) error {
	fs := flag.NewFlagSet("copy", flag.ContinueOnError)
	configPath, driver, dataDir := storeFlags(fs)
	toDriver := fs.String("to-store", "file", "target storage driver")
	toDataDir := fs.String("to-data-dir", "", "target data directory (default: source data dir)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	cfg, err := resolveConfig(*configPath, *driver, *dataDir)
	if err != nil {
		return err
	}
	from, closeFrom, err := storage.Open(cfg.Storage)
	if err != nil {
		return err
	}
	defer closeFrom()

	target := cfg.Storage
	target.Driver = *toDriver
	if *toDataDir != "" {
		target.DataDir = *toDataDir
	}
	target.ApplyDefaults()
	if target == cfg.Storage {
		return fmt.Errorf("source and target store are the same")
	}
	to, closeTo, err := storage.Open(target)
	if err != nil {
		return err
	}
	defer closeTo()

	if err := ops.Copy(context.Background(), from, to); err != nil {
		return err
	}
	fmt.Printf("copied %s -> %s\n", cfg.Storage.Driver, target.Driver)
	return nil
}

func cmdDrill(args []string) error {
	fs := flag.NewFlagSet("drill", flag.ContinueOnError)
	configPath, driver, dataDir := storeFlags(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	cfg, err := resolveConfig(*configPath, *driver, *dataDir)
	if err != nil {
		return err
	}
	repo, closeRepo, err := storage.Open(cfg.Storage)
	if err != nil {
		return err
	}
	defer closeRepo()

	n, err := ops.Drill(context.Background(), repo)
	if err != nil {
		return err
	}
	fmt.Printf("round trip ok: %d entities\n", n)
	return nil
}

func printUsage() {
	fmt.Println("usage:")
	fmt.Println("  rat-ops export --config rat_and_time.yml [--out state.json]")
	fmt.Println("  rat-ops import --config rat_and_time.yml [--in state.json]")
	fmt.Println("  rat-ops copy   --store sqlite --to-store file [--to-data-dir data-copy]")
	fmt.Println("  rat-ops drill  --config rat_and_time.yml")
}
