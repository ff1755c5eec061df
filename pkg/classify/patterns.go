package classify

import "github.com/cuemby/rch/pkg/types"

// keywords is the fixed compilation-keyword set (spec.md §4.1 tier 4). Order
// doesn't matter here; presence is checked with a flat substring scan.
var keywords = []string{
	"cargo", "rustc", "gcc", "g++", "clang", "clang++", "cc",
	"make", "cmake", "ninja", "meson", "bun",
}

// negativeTokensByKeyword maps a tool keyword to the exact tokens (not flags)
// that, appearing as the subcommand immediately after that keyword, exclude
// the command from interception even though a keyword is present.
var negativeTokensByKeyword = map[string][]string{
	"cargo": {
		"install", "fmt", "fix", "clean", "publish", "add", "remove",
		"update", "new", "init", "search", "owner", "login", "yank",
	},
	"bun": {
		"install", "add", "remove", "link", "run", "build", "dev",
		"repl", "x", "bunx",
	},
}

// negativeFlags are flags anywhere in the token stream that force a
// PassThrough regardless of which keyword or subcommand is present.
var negativeFlags = []string{"--help", "--version", "--watch", "-i", "--interactive"}

// pattern is one entry of the precompiled positive-match table. Tokens is
// the literal token prefix (first token is always the tool keyword itself)
// that a command must start with to match.
type pattern struct {
	Tokens           []string
	Kind             types.DecisionKind
	Runtime          types.Runtime
	ArtifactPatterns []string
	Confidence       float64
}

// positivePatterns is checked top-to-bottom; ties on prefix length are
// broken by table order, so more specific aliases of a family should be
// listed before their shorter/generic counterparts only when they are not
// already longer (longer prefixes win on their own).
var positivePatterns = []pattern{
	{[]string{"cargo", "build"}, types.KindCargoBuild, types.RuntimeRust,
		[]string{"target/debug/**", "target/release/**"}, 0.95},
	{[]string{"cargo", "b"}, types.KindCargoBuild, types.RuntimeRust,
		[]string{"target/debug/**", "target/release/**"}, 0.95},
	{[]string{"cargo", "test"}, types.KindCargoTest, types.RuntimeRust,
		[]string{"target/debug/deps/**"}, 0.95},
	{[]string{"cargo", "t"}, types.KindCargoTest, types.RuntimeRust,
		[]string{"target/debug/deps/**"}, 0.95},
	{[]string{"cargo", "check"}, types.KindCargoCheck, types.RuntimeRust, nil, 0.9},
	{[]string{"cargo", "c"}, types.KindCargoCheck, types.RuntimeRust, nil, 0.9},
	{[]string{"cargo", "clippy"}, types.KindCargoClippy, types.RuntimeRust, nil, 0.9},
	{[]string{"cargo", "doc"}, types.KindCargoDoc, types.RuntimeRust,
		[]string{"target/doc/**"}, 0.85},
	{[]string{"cargo", "bench"}, types.KindCargoBench, types.RuntimeRust,
		[]string{"target/release/deps/**"}, 0.85},
	{[]string{"rustc"}, types.KindRustc, types.RuntimeRust,
		[]string{"*.rlib", "*.d", "a.out"}, 0.8},
	{[]string{"gcc"}, types.KindCCxx, types.RuntimeCCxx,
		[]string{"*.o", "*.out", "a.out"}, 0.85},
	{[]string{"g++"}, types.KindCCxx, types.RuntimeCCxx,
		[]string{"*.o", "*.out", "a.out"}, 0.85},
	{[]string{"clang"}, types.KindCCxx, types.RuntimeCCxx,
		[]string{"*.o", "*.out", "a.out"}, 0.85},
	{[]string{"clang++"}, types.KindCCxx, types.RuntimeCCxx,
		[]string{"*.o", "*.out", "a.out"}, 0.85},
	{[]string{"cc"}, types.KindCCxx, types.RuntimeCCxx,
		[]string{"*.o", "*.out", "a.out"}, 0.85},
	{[]string{"cmake", "--build"}, types.KindCMakeBuild, types.RuntimeGeneric, nil, 0.85},
	{[]string{"ninja"}, types.KindNinja, types.RuntimeGeneric, nil, 0.8},
	{[]string{"meson", "compile"}, types.KindMesonCompile, types.RuntimeGeneric, nil, 0.85},
	{[]string{"make"}, types.KindMake, types.RuntimeGeneric, nil, 0.7},
	{[]string{"bun", "test"}, types.KindBunTest, types.RuntimeNodeBun,
		[]string{"coverage/**"}, 0.9},
	// "bun typecheck" is a direct script shorthand, distinct from the
	// negated "bun run typecheck" — bun resolves a bare script name to the
	// package.json "scripts" entry without going through "run".
	{[]string{"bun", "typecheck"}, types.KindBunTypecheck, types.RuntimeNodeBun, nil, 0.85},
}
