/*
Package classify implements RCH's five-tier command classifier (spec.md
§4.1): a pure function from a Command to a Decision that never performs I/O,
allocates only its result and one token slice, and completes in single-digit
milliseconds for any realistic input.

The five tiers, checked in order, are:

 1. Tool tag — anything other than the shell tool passes straight through.
 2. Emptiness — an empty or whitespace-only command passes through.
 3. Shell complexity — pipes, redirects, command substitution, background
    execution and similar metacharacters pass through, because the hook
    cannot safely ship a multi-stage shell pipeline to a single remote
    command.
 4. Keyword presence — a single substring scan over a fixed keyword set;
    absence passes through.
 5. Pattern matching — the command is matched against a precompiled table of
    positive patterns (yielding a DecisionKind, required runtime, artifact
    globs, and a base confidence) and negative patterns (explicit exclusions
    like `cargo install` that contain a keyword but aren't a build).

All pattern tables are built once at package init via sync.Once-free plain
package-level variables — there is no runtime compilation on the
classification hot path.
*/
package classify
