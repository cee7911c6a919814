//go:build windows

package config

// windowsEnv maps POSIX variable names used in shared config files to their
// Windows equivalents.
var windowsEnv = map[string]string{
	"HOSTNAME": "COMPUTERNAME",
	"USER":     "USERNAME",
	"HOME":     "USERPROFILE",
	"TMPDIR":   "TEMP",
}

func mapEnvKey(key string) string {
	if mapped, ok := windowsEnv[key]; ok {
		return mapped
	}
	return key
}
