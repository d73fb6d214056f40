package cmd

import (
	"github.com/spf13/cobra"
)

var driverCmd = &cobra.Command{
	Use:   "driver BASE CURRENT OTHER PATH",
	Short: "Run as a git merge driver",
	Long: `Run as a git merge driver. The merged result replaces CURRENT.

Configure it in .git/config or ~/.gitconfig:

  [merge "mergepipe"]
    name = mergepipe
    driver = mergepipe driver %O %A %B %P

and select it per path in .gitattributes:

  * merge=mergepipe`,
	Args: cobra.ExactArgs(4),
	RunE: runDriver,
}

var remergeCmd = &cobra.Command{
	Use:   "remerge BASE CURRENT OTHER",
	Short: "Re-merge a single file in place",
	Long: `Re-merge a single file. The result replaces CURRENT, and CURRENT's own
path is used to select the pipeline.`,
	Args: cobra.ExactArgs(3),
	RunE: runRemerge,
}

var toolCmd = &cobra.Command{
	Use:   "tool LOCAL REMOTE MERGED",
	Short: "Run as a git mergetool",
	Long: `Run as a git mergetool. The result is written to MERGED.

  [mergetool "mergepipe"]
    cmd = mergepipe tool "$LOCAL" "$REMOTE" "$MERGED"
    trustExitCode = true`,
	Args: cobra.ExactArgs(3),
	RunE: runTool,
}

var mergeCmd = &cobra.Command{
	Use:   "merge BRANCH...",
	Short: "Merge branches into the working tree",
	Long: `Merge one or more branches into the working tree of a repository.

Every path changed on any branch is merged through its pipeline, one branch
at a time, starting from the base. Nothing is written unless every path
merges; the working tree is left untouched otherwise. Nothing is committed.`,
	Example: `  # Merge two feature branches using their common ancestor as base
  mergepipe merge feature-a feature-b

  # Merge relative to an explicit base in another repository
  mergepipe merge --base main --repo ../project release`,
	Args: cobra.MinimumNArgs(1),
	RunE: runMerge,
}

var (
	mergeBase string
	mergeRepo string
)

func init() {
	rootCmd.AddCommand(driverCmd)
	rootCmd.AddCommand(remergeCmd)
	rootCmd.AddCommand(toolCmd)
	rootCmd.AddCommand(mergeCmd)

	mergeCmd.Flags().StringVar(&mergeBase, "base", "", "Base ref (default: common ancestor of the branches)")
	mergeCmd.Flags().StringVar(&mergeRepo, "repo", ".", "Repository directory")
}

func runDriver(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	return result(a.orchestrator.MergeFile(args[0], args[1], args[2], args[3]))
}

func runRemerge(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	return result(a.orchestrator.ReMerge(args[0], args[1], args[2]))
}

func runTool(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	return result(a.orchestrator.MergeTool(args[0], args[1], args[2]))
}

func runMerge(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	return result(a.orchestrator.MergeBranches(mergeBase, mergeRepo, args))
}
