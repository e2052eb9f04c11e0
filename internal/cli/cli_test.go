package cli

import (
	"bytes"
	"encoding/json"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kiwi-labs/kiwi/internal/registry"
	"github.com/kiwi-labs/kiwi/internal/registrydb"
)

// setup points the CLI at a fresh home and an in-process registry.
func setup(t *testing.T) (home string) {
	t.Helper()
	home = t.TempDir()
	db, err := registrydb.Open(filepath.Join(t.TempDir(), "registry.db"))
	require.NoError(t, err)
	srv := httptest.NewServer(registry.NewServer(db).Handler())
	t.Cleanup(func() {
		srv.Close()
		_ = db.Close()
	})

	t.Setenv("KIWI_HOME", home)
	t.Setenv("KIWI_DIRECTIVES", filepath.Join(home, "directives"))
	t.Setenv("KIWI_REGISTRY_URL", srv.URL)
	t.Setenv("KIWI_UPDATE_CHECK", "false")
	t.Setenv("KIWI_SYNC_BACKOFF", "1ms")
	viper.Reset()
	t.Cleanup(viper.Reset)
	return home
}

func resetFlags(cmd *cobra.Command) {
	reset := func(f *pflag.Flag) {
		if sv, ok := f.Value.(pflag.SliceValue); ok {
			_ = sv.Replace(nil)
		} else {
			_ = f.Value.Set(f.DefValue)
		}
		f.Changed = false
	}
	cmd.Flags().VisitAll(reset)
	cmd.PersistentFlags().VisitAll(reset)
	for _, c := range cmd.Commands() {
		resetFlags(c)
	}
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	resetFlags(rootCmd)
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func writeDirective(t *testing.T, dir, name, version, body string) string {
	t.Helper()
	path := filepath.Join(dir, name+"-"+version+".md")
	content := "---\n" +
		"name: " + name + "\n" +
		"version: " + version + "\n" +
		"description: JWT authentication middleware\n" +
		"category: security\n" +
		"tags: [auth, jwt]\n" +
		"tech_stack: [go]\n" +
		"---\n" + body + "\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestPublishInstallSyncVerify(t *testing.T) {
	home := setup(t)
	src := t.TempDir()

	out, err := run(t, "publish", writeDirective(t, src, "jwt_auth", "1.0.0", "# v1"))
	require.NoError(t, err, out)
	assert.Contains(t, out, "Published jwt_auth 1.0.0")

	out, err = run(t, "install", "jwt_auth")
	require.NoError(t, err, out)
	assert.Contains(t, out, "updated")
	installed := filepath.Join(home, "directives", "security", "jwt_auth.md")
	data, err := os.ReadFile(installed)
	require.NoError(t, err)
	assert.Contains(t, string(data), "# v1")

	out, err = run(t, "publish", writeDirective(t, src, "jwt_auth", "1.1.0", "# v2"), "--version", "1.1.0", "--changelog", "second")
	require.NoError(t, err, out)

	out, err = run(t, "sync", "--dry-run")
	require.NoError(t, err, out)
	assert.Contains(t, out, "update_available")

	out, err = run(t, "sync")
	require.NoError(t, err, out)
	assert.Contains(t, out, "updated")
	data, err = os.ReadFile(installed)
	require.NoError(t, err)
	assert.Contains(t, string(data), "# v2")

	out, err = run(t, "sync")
	require.NoError(t, err, out)
	assert.Contains(t, out, "up_to_date")
	assert.NotContains(t, out, "updated")

	out, err = run(t, "verify")
	require.NoError(t, err, out)
	assert.Contains(t, out, "valid")

	require.NoError(t, os.WriteFile(installed, []byte("edited"), 0o644))
	out, err = run(t, "verify")
	require.Error(t, err)
	assert.Contains(t, out, "hash_mismatch")
}

func TestInstalledFileResolvesAtLockedVersion(t *testing.T) {
	home := setup(t)
	src := filepath.Join(t.TempDir(), "jwt_auth.md")
	body := "---\nname: jwt_auth\ndescription: JWT authentication middleware\ncategory: security\n---\n# unversioned\n"
	require.NoError(t, os.WriteFile(src, []byte(body), 0o644))

	out, err := run(t, "publish", src, "--version", "1.2.0")
	require.NoError(t, err, out)
	out, err = run(t, "install", "jwt_auth")
	require.NoError(t, err, out)
	_, err = os.Stat(filepath.Join(home, "directives", "security", "jwt_auth.md"))
	require.NoError(t, err)

	for _, constraint := range []string{"pinned", "1.2.0", "^1.0.0"} {
		out, err = run(t, "get", "jwt_auth", "--version", constraint, "--tier", "user", "--json")
		require.NoError(t, err, constraint)
		assert.Contains(t, out, `"version": "1.2.0"`, constraint)
		assert.Contains(t, out, `"source": "user"`, constraint)
	}
}

func TestProjectInstallStaysInProject(t *testing.T) {
	home := setup(t)
	src := t.TempDir()
	_, err := run(t, "publish", writeDirective(t, src, "jwt_auth", "1.0.0", "# v1"))
	require.NoError(t, err)

	projectA, projectB := t.TempDir(), t.TempDir()
	out, err := run(t, "install", "jwt_auth", "--project", projectA)
	require.NoError(t, err, out)
	installed := filepath.Join(projectA, ".ai", "directives", "security", "jwt_auth.md")
	data, err := os.ReadFile(installed)
	require.NoError(t, err)
	assert.Contains(t, string(data), "# v1")
	_, err = os.Stat(filepath.Join(projectA, ".ai", "directives.lock.json"))
	require.NoError(t, err)

	_, err = run(t, "publish", writeDirective(t, src, "jwt_auth", "1.1.0", "# v2"))
	require.NoError(t, err)
	out, err = run(t, "install", "jwt_auth", "--project", projectB)
	require.NoError(t, err, out)

	out, err = run(t, "verify", "--project", projectA)
	require.NoError(t, err, out)
	assert.Contains(t, out, "valid")
	assert.NotContains(t, out, "hash_mismatch")

	_, err = os.Stat(filepath.Join(home, "directives", "security", "jwt_auth.md"))
	assert.True(t, os.IsNotExist(err), "project installs must not write the user tier")
}

func TestSyncRestoresDeletedFile(t *testing.T) {
	home := setup(t)
	src := t.TempDir()
	_, err := run(t, "publish", writeDirective(t, src, "jwt_auth", "1.0.0", "# v1"))
	require.NoError(t, err)
	_, err = run(t, "install", "jwt_auth")
	require.NoError(t, err)

	installed := filepath.Join(home, "directives", "security", "jwt_auth.md")
	require.NoError(t, os.Remove(installed))

	out, err := run(t, "sync")
	require.NoError(t, err, out)
	assert.Contains(t, out, "restored")
	_, err = os.Stat(installed)
	require.NoError(t, err)
}

func TestVersions(t *testing.T) {
	setup(t)
	src := t.TempDir()
	for _, v := range []string{"1.2.0", "1.0.0", "1.10.0"} {
		_, err := run(t, "publish", writeDirective(t, src, "jwt_auth", v, "# "+v))
		require.NoError(t, err)
	}

	out, err := run(t, "versions", "jwt_auth")
	require.NoError(t, err, out)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 4, out)
	assert.True(t, strings.HasPrefix(lines[0], "VERSION"))
	assert.True(t, strings.HasPrefix(lines[1], "1.10.0"))
	assert.Contains(t, lines[1], "*")
	assert.True(t, strings.HasPrefix(lines[2], "1.2.0"))
	assert.NotContains(t, lines[2], "*")
	assert.True(t, strings.HasPrefix(lines[3], "1.0.0"))

	out, err = run(t, "versions", "jwt_auth", "--json")
	require.NoError(t, err, out)
	var infos []registry.VersionInfo
	require.NoError(t, json.Unmarshal([]byte(out), &infos))
	require.Len(t, infos, 3)
	assert.Equal(t, "1.10.0", infos[0].Version)
	assert.True(t, infos[0].IsLatest)

	_, err = run(t, "versions", "missing")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestGetHonorsTiersAndConstraints(t *testing.T) {
	setup(t)
	src := t.TempDir()
	_, err := run(t, "publish", writeDirective(t, src, "jwt_auth", "1.0.0", "# registry v1"))
	require.NoError(t, err)
	_, err = run(t, "publish", writeDirective(t, src, "jwt_auth", "2.0.0", "# registry v2"))
	require.NoError(t, err)

	out, err := run(t, "get", "jwt_auth")
	require.NoError(t, err, out)
	assert.Contains(t, out, "# registry v2")

	out, err = run(t, "get", "jwt_auth", "--version", "^1.0.0")
	require.NoError(t, err, out)
	assert.Contains(t, out, "# registry v1")

	_, err = run(t, "get", "jwt_auth", "--version", "^3.0.0")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "registry")

	project := t.TempDir()
	local := filepath.Join(project, ".ai", "directives", "core")
	require.NoError(t, os.MkdirAll(local, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(local, "jwt_auth.md"), []byte("# project copy\n"), 0o644))

	out, err = run(t, "get", "jwt_auth", "--project", project)
	require.NoError(t, err, out)
	assert.Contains(t, out, "# project copy")

	out, err = run(t, "get", "jwt_auth", "--project", project, "--tier", "registry")
	require.NoError(t, err, out)
	assert.Contains(t, out, "# registry v2")

	target := filepath.Join(t.TempDir(), "out", "jwt_auth.md")
	out, err = run(t, "get", "jwt_auth", "--output", target)
	require.NoError(t, err, out)
	data, err := os.ReadFile(target)
	require.NoError(t, err)
	assert.Contains(t, string(data), "# registry v2")

	_, err = run(t, "get", "missing")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestSearch(t *testing.T) {
	setup(t)
	src := t.TempDir()
	_, err := run(t, "publish", writeDirective(t, src, "jwt_auth", "1.0.0", "# v1"))
	require.NoError(t, err)

	out, err := run(t, "search", "jwt", "auth", "--source", "registry")
	require.NoError(t, err, out)
	assert.Contains(t, out, "jwt_auth")
	assert.Contains(t, out, "100.0")

	out, err = run(t, "search", "jwt", "--tech-stack", "python")
	require.NoError(t, err, out)
	assert.Contains(t, out, "No directives found")

	out, err = run(t, "search", "jwt", "--json")
	require.NoError(t, err, out)
	assert.True(t, strings.HasPrefix(strings.TrimSpace(out), "["))
	assert.Contains(t, out, `"source": "registry"`)

	_, err = run(t, "search", "jwt", "--sort", "random")
	require.Error(t, err)
}

func TestPublishValidation(t *testing.T) {
	setup(t)
	src := t.TempDir()
	path := writeDirective(t, src, "jwt_auth", "1.0.0", "# v1")

	out, err := run(t, "publish", path, "--validate-only")
	require.NoError(t, err, out)
	assert.Contains(t, out, "is valid")

	_, err = run(t, "publish", path, "--version", "2.0.0")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "does not match")

	bad := filepath.Join(src, "bad.md")
	require.NoError(t, os.WriteFile(bad, []byte("---\nname: x\ndescription: missing category\n---\n"), 0o644))
	_, err = run(t, "publish", bad, "--version", "1.0.0")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed validation")

	_, err = run(t, "publish", path)
	require.NoError(t, err)
	_, err = run(t, "publish", path)
	require.Error(t, err, "republishing a version must fail")
}

func TestListAndDelete(t *testing.T) {
	home := setup(t)
	src := t.TempDir()
	_, err := run(t, "publish", writeDirective(t, src, "jwt_auth", "1.0.0", "# v1"))
	require.NoError(t, err)

	out, err := run(t, "list")
	require.NoError(t, err, out)
	assert.Contains(t, out, "No directives installed")

	_, err = run(t, "install", "jwt_auth")
	require.NoError(t, err)
	out, err = run(t, "list", "--tier", "user")
	require.NoError(t, err, out)
	assert.Contains(t, out, filepath.Join(home, "directives", "security", "jwt_auth.md"))

	_, err = run(t, "list", "--tier", "registry")
	require.Error(t, err)

	out, err = run(t, "delete", "jwt_auth")
	require.NoError(t, err, out)
	_, err = run(t, "get", "jwt_auth", "--tier", "registry")
	require.Error(t, err)
}

func TestConfigAndVersion(t *testing.T) {
	setup(t)
	buildVersion = "1.2.3"

	out, err := run(t, "config", "set", "search.limit", "5")
	require.NoError(t, err, out)
	out, err = run(t, "config", "get", "search.limit")
	require.NoError(t, err)
	assert.Equal(t, "5\n", out)

	out, err = run(t, "version", "--short")
	require.NoError(t, err)
	assert.Equal(t, "1.2.3\n", out)
}
