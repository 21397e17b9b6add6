// Command glance-enroll drives the Enrollment Controller from a terminal:
// capture IR then RGB templates for a user, list/remove enrollments, and
// manage the dlib model files the authenticator needs.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/glance-auth/glance/pkg/camera"
	"github.com/glance-auth/glance/pkg/config"
	"github.com/glance-auth/glance/pkg/devices"
	"github.com/glance-auth/glance/pkg/enrollment"
	"github.com/glance-auth/glance/pkg/logging"
	"github.com/glance-auth/glance/pkg/models"
	"github.com/glance-auth/glance/pkg/recognition"
	"github.com/glance-auth/glance/pkg/storage"
)

const version = "0.1.0"

// Command represents a CLI command.
type Command struct {
	Name        string
	Description string
	Usage       string
	Run         func(args []string) error
}

var (
	cfg      config.AuthConfig
	commands map[string]*Command
	store    *storage.Store
)

func init() {
	commands = map[string]*Command{
		"enroll": {
			Name:        "enroll",
			Description: "Enroll a new face (IR then RGB, one capture each)",
			Usage:       "glance-enroll enroll <username>",
			Run:         cmdEnroll,
		},
		"test": {
			Name:        "test",
			Description: "Test recognition against stored templates",
			Usage:       "glance-enroll test <username>",
			Run:         cmdTest,
		},
		"remove": {
			Name:        "remove",
			Description: "Remove a user's face data",
			Usage:       "glance-enroll remove <username>",
			Run:         cmdRemove,
		},
		"list": {
			Name:        "list",
			Description: "List all enrolled users",
			Usage:       "glance-enroll list",
			Run:         cmdList,
		},
		"cameras": {
			Name:        "cameras",
			Description: "List available cameras",
			Usage:       "glance-enroll cameras",
			Run:         cmdCameras,
		},
		"download-models": {
			Name:        "download-models",
			Description: "Download required dlib models",
			Usage:       "glance-enroll download-models [directory]",
			Run:         cmdDownloadModels,
		},
		"version": {
			Name:        "version",
			Description: "Show version information",
			Usage:       "glance-enroll version",
			Run:         cmdVersion,
		},
		"help": {
			Name:        "help",
			Description: "Show help information",
			Usage:       "glance-enroll help [command]",
			Run:         cmdHelp,
		},
	}
}

func main() {
	configFile := flag.String("config", "", "Path to configuration file")
	debug := flag.Bool("debug", false, "Enable debug logging")
	flag.Parse()
	args := flag.Args()

	var fc config.FileConfig
	if *configFile != "" {
		loaded, err := config.LoadFile(*configFile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Warning: could not load config: %v\n", err)
			fc = config.DefaultFileConfig()
		} else {
			fc = loaded
		}
	} else {
		fc = config.LoadDefault()
	}
	cfg = config.FromFileConfig(fc)

	if *debug {
		logging.SetLevel("debug")
	}

	if len(args) < 1 {
		printUsage()
		os.Exit(0)
	}

	cmdName := args[0]
	cmd, ok := commands[cmdName]
	if !ok {
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", cmdName)
		printUsage()
		os.Exit(1)
	}

	if err := cmd.Run(args[1:]); err != nil {
		logging.WithError(err).Errorf("command %q failed", cmdName)
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("glance-enroll - enrollment CLI for the local face authenticator")
	fmt.Printf("Version: %s\n\n", version)
	fmt.Println("Usage: glance-enroll [options] <command> [arguments]")
	fmt.Println("\nOptions:")
	fmt.Println("  -config <file>   Path to configuration file")
	fmt.Println("  -debug           Enable debug logging")
	fmt.Println("\nCommands:")
	for _, name := range []string{"enroll", "test", "remove", "list", "cameras", "download-models", "version", "help"} {
		cmd := commands[name]
		fmt.Printf("  %-16s %s\n", cmd.Name, cmd.Description)
	}
}

func initStore() {
	if store == nil {
		store = storage.NewStore(cfg.DataDir, cfg.SystemDataDir)
	}
}

func cmdEnroll(args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("username required\nUsage: glance-enroll enroll <username>")
	}
	username := args[0]
	initStore()

	status := models.Locate(cfg.ModelsDir)
	if !status.Complete() {
		return fmt.Errorf("%s", status.Error())
	}

	infos := devices.List()
	var irInfo, rgbInfo *devices.Info
	for i := range infos {
		switch infos[i].Kind {
		case devices.IR:
			if irInfo == nil {
				irInfo = &infos[i]
			}
		case devices.RGB:
			if rgbInfo == nil {
				rgbInfo = &infos[i]
			}
		}
	}
	if irInfo == nil && rgbInfo == nil {
		return enrollment.ErrNoCameraAvailable
	}

	existing, err := store.Load(username)
	if err != nil {
		existing = nil
	}

	controller := enrollment.NewController()
	engineFor := func(isIR bool) (enrollment.FrameEngine, error) {
		return recognition.NewEngine(cfg.ModelsDir, cfg.ToleranceFor(isIR))
	}
	newHandle := func() devices.FrameReader { return camera.NewHandle() }

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	fmt.Printf("Enrolling %s. Look at the camera; hold still once a capture begins.\n", username)
	tmpl, err := controller.Run(ctx, username, existing, irInfo, rgbInfo, engineFor, newHandle)
	if err != nil {
		return fmt.Errorf("enrollment failed: %w", err)
	}

	if err := store.Save(tmpl); err != nil {
		return fmt.Errorf("failed to save template: %w", err)
	}

	fmt.Printf("Enrollment complete for %s (ir=%v, rgb=%v)\n", username, tmpl.IRCaptured, tmpl.RGBCaptured)
	return nil
}

func cmdTest(args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("username required\nUsage: glance-enroll test <username>")
	}
	username := args[0]
	initStore()

	tmpl, err := store.Load(username)
	if err != nil {
		return fmt.Errorf("no template for %s: %w", username, err)
	}

	infos := devices.OrderedFor(devices.List(), cfg.PreferIR)
	if len(infos) == 0 {
		return fmt.Errorf("no cameras available")
	}

	info := infos[0]
	isIR := info.Kind == devices.IR
	engine, err := recognition.NewEngine(cfg.ModelsDir, cfg.ToleranceFor(isIR))
	if err != nil {
		return fmt.Errorf("failed to load recognition models: %w", err)
	}
	defer engine.Close()

	cam := camera.NewHandle()
	defer func() { _ = cam.Close() }()
	if err := cam.Open(info.DevicePath); err != nil {
		return fmt.Errorf("failed to open camera %s: %w", info.DevicePath, err)
	}

	width, height, rgb, err := cam.Read()
	if err != nil {
		return fmt.Errorf("failed to read frame: %w", err)
	}

	det, err := engine.Detect(width, height, rgb)
	if err != nil {
		return fmt.Errorf("detection failed: %w", err)
	}
	if !det.FaceFound {
		fmt.Println("No face detected.")
		return nil
	}

	distance, ok := engine.Compare(det.Embedding, tmpl.AllEmbeddings())
	if ok {
		fmt.Printf("Match for %s (distance=%.4f)\n", username, distance)
	} else {
		fmt.Printf("No match (closest distance=%.4f)\n", distance)
	}
	return nil
}

func cmdRemove(args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("username required\nUsage: glance-enroll remove <username>")
	}
	username := args[0]
	initStore()

	fmt.Printf("Are you sure you want to remove face data for '%s'? [y/N]: ", username)
	reader := bufio.NewReader(os.Stdin)
	response, _ := reader.ReadString('\n')
	response = strings.TrimSpace(strings.ToLower(response))
	if response != "y" && response != "yes" {
		fmt.Println("Cancelled.")
		return nil
	}

	if err := store.Delete(username); err != nil {
		return fmt.Errorf("failed to remove user data: %w", err)
	}
	fmt.Printf("Face data for '%s' has been removed.\n", username)
	return nil
}

func cmdList(args []string) error {
	initStore()
	users, err := store.ListUsers()
	if err != nil {
		return fmt.Errorf("failed to list users: %w", err)
	}
	if len(users) == 0 {
		fmt.Println("No users enrolled.")
		return nil
	}

	fmt.Println("Enrolled users:")
	for _, username := range users {
		tmpl, err := store.Load(username)
		if err != nil {
			fmt.Printf("  - %s (error loading data)\n", username)
			continue
		}
		fmt.Printf("  - %s (ir=%v, rgb=%v, updated: %s)\n",
			username, tmpl.IRCaptured, tmpl.RGBCaptured, tmpl.UpdatedAt.Format("2006-01-02"))
	}
	return nil
}

func cmdCameras(args []string) error {
	infos := devices.List()
	if len(infos) == 0 {
		fmt.Println("No cameras found.")
		return nil
	}
	fmt.Println("Available cameras:")
	for _, info := range infos {
		fmt.Printf("  %s: %s [%s]\n", info.DevicePath, info.Name, info.Kind)
	}
	return nil
}

func cmdDownloadModels(args []string) error {
	dir := cfg.ModelsDir
	if len(args) > 0 {
		dir = args[0]
	}
	return downloadModels(dir)
}

func cmdVersion(args []string) error {
	fmt.Printf("glance-enroll v%s\n", version)
	fmt.Println("Local face-recognition enrollment CLI")
	fmt.Println("Components:")
	fmt.Println("  - Face Recognition: dlib/go-face")
	fmt.Println("  - Camera: V4L2 (go4vl)")
	return nil
}

func cmdHelp(args []string) error {
	if len(args) == 0 {
		printUsage()
		return nil
	}
	cmd, ok := commands[args[0]]
	if !ok {
		return fmt.Errorf("unknown command: %s", args[0])
	}
	fmt.Printf("Command: %s\nDescription: %s\nUsage: %s\n", cmd.Name, cmd.Description, cmd.Usage)
	return nil
}
