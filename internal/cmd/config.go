package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/Iron-Ham/mergepipe/internal/config"
	"github.com/Iron-Ham/mergepipe/internal/pipeline"
	"github.com/Iron-Ham/mergepipe/internal/rule"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "View mergepipe settings and pipeline documents",
	Long: `View mergepipe settings and pipeline documents.

Without arguments, displays the effective settings.`,
	RunE: runConfigShow,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show effective settings",
	RunE:  runConfigShow,
}

var configValidateCmd = &cobra.Command{
	Use:   "validate [FILE]",
	Short: "Validate a pipeline document",
	Long: `Validate a pipeline document and summarise its contents.

Without FILE, the document mergepipe would use is validated: --pipeline,
then $MERGEPIPE_PIPELINE, then .gitmergepipeline.{json,yaml} in the working
directory and then in the home directory.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runConfigValidate,
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Create a default settings file",
	Long:  `Create a default settings file at ~/.config/mergepipe/config.yaml.`,
	RunE:  runConfigInit,
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Show the settings and pipeline document paths",
	RunE:  runConfigPath,
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configValidateCmd)
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configPathCmd)
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()

	if viper.ConfigFileUsed() != "" {
		fmt.Fprintf(out, "# Config file: %s\n", viper.ConfigFileUsed())
	} else {
		fmt.Fprintln(out, "# Config file: (none - using defaults)")
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to render settings: %w", err)
	}
	_, err = out.Write(data)
	return err
}

func runConfigValidate(cmd *cobra.Command, args []string) error {
	path := viper.GetString("pipeline.file")
	if len(args) > 0 {
		path = args[0]
	}

	path, err := config.FindDocument(path)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if path == "" {
		fmt.Fprintln(out, "No pipeline document found; every merge would fail with no pipeline.")
		return nil
	}

	doc, err := config.LoadDocument(path)
	if err != nil {
		return err
	}

	st := newStyles(out)
	fmt.Fprintln(out, st.heading.Render(path+" is valid"))
	fmt.Fprintf(out, "  detect renames: %v\n", doc.DetectRenames)
	fmt.Fprintf(out, "  filters: %d\n", len(doc.Filters))
	for _, f := range doc.Filters {
		fmt.Fprintln(out, st.fit("    - "+f.Description()))
	}
	fmt.Fprintf(out, "  rules: %d\n", len(doc.Rules))
	fmt.Fprintf(out, "  pipelines: %d\n", len(doc.Pipelines))
	for _, p := range doc.Pipelines {
		describePipeline(out, st, p, "    ")
	}
	return nil
}

func describePipeline(out io.Writer, st styles, p pipeline.Pipeline, indent string) {
	fmt.Fprintln(out, st.fit(indent+"- "+st.name.Render(p.Description())))

	switch p := p.(type) {
	case *pipeline.Standard:
		describeSteps(out, st, p.Steps(), indent+"    ")
	case *pipeline.Fallback:
		describeSteps(out, st, p.Steps(), indent+"    ")
	case *pipeline.Conditional:
		for _, b := range p.Branches() {
			fmt.Fprintln(out, st.fit(indent+"    when "+b.Rule.Description()+":"))
			describePipeline(out, st, b.Pipeline, indent+"      ")
		}
		if def := p.Default(); def != nil {
			fmt.Fprintf(out, "%s    otherwise:\n", indent)
			describePipeline(out, st, def, indent+"      ")
		}
	}
}

// describeSteps prints one line per step. Long command-line parameters are
// cut at the terminal edge.
func describeSteps(out io.Writer, st styles, steps []pipeline.Step, indent string) {
	for _, s := range steps {
		line := fmt.Sprintf("%s%s %v %s", indent, s.Operation, s.Params, st.muted.Render("when "+rule.Describe(s.Rule)))
		fmt.Fprintln(out, st.fit(line))
	}
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	configDir := config.ConfigDir()
	configFile := config.ConfigFile()

	// Check if config file already exists
	if _, err := os.Stat(configFile); err == nil {
		return fmt.Errorf("config file already exists at %s", configFile)
	}

	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(config.Default())
	if err != nil {
		return fmt.Errorf("failed to render default settings: %w", err)
	}

	header := `# mergepipe settings
# Environment variables override these as MERGEPIPE_<SECTION>_<KEY>,
# e.g. MERGEPIPE_MERGE_DEFAULT_STRATEGY=ort.

`
	if err := os.WriteFile(configFile, append([]byte(header), data...), 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Created config file at %s\n", configFile)
	return nil
}

func runConfigPath(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()

	if viper.ConfigFileUsed() != "" {
		fmt.Fprintf(out, "Active config: %s\n", viper.ConfigFileUsed())
	} else {
		fmt.Fprintf(out, "Default path: %s (not created)\n", config.ConfigFile())
	}

	doc, err := config.FindDocument(viper.GetString("pipeline.file"))
	switch {
	case err != nil:
		fmt.Fprintf(out, "Pipeline document: %v\n", err)
	case doc == "":
		fmt.Fprintln(out, "Pipeline document: (none found)")
	default:
		fmt.Fprintf(out, "Pipeline document: %s\n", doc)
	}

	fmt.Fprintln(out, "\nPipeline document search order:")
	fmt.Fprintln(out, "  1. --pipeline flag")
	fmt.Fprintf(out, "  2. $%s\n", config.DocumentEnv)
	fmt.Fprintln(out, "  3. ./.gitmergepipeline.{json,yaml,yml}")
	fmt.Fprintln(out, "  4. $HOME/.gitmergepipeline.{json,yaml,yml}")
	fmt.Fprintln(out, "\nEnvironment variables: MERGEPIPE_* (e.g., MERGEPIPE_LOGGING_LEVEL)")

	return nil
}
