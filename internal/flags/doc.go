// Package flags manages command-line flags and environment variables for tagwatch.
//
// Every flag has an environment binding registered by SetDefaults; the
// TAGWATCH_ prefixed variable wins over the plain name (for example
// TAGWATCH_CONFIG over CONFIG_PATH).
//
// Usage example:
//
//	flags.SetDefaults()
//	flags.RegisterCheckFlags(cmd)
//	flags.RegisterStateFlags(cmd)
//	flags.RegisterSystemFlags(cmd)
//	opts, err := flags.ReadOptions(cmd.PersistentFlags())
package flags
