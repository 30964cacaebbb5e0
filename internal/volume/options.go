package volume

import (
	"strings"

	"github.com/spf13/viper"
)

// MountOptions are the spec.md §6.2 mount-time knobs, parsed from a
// comma-separated key=value option string the way the teacher's CLI layers
// flags/env/config through viper rather than hand-rolled splitting.
type MountOptions struct {
	ReadOnly     bool
	ForceWrapper bool // treat the volume as an HFS-standard wrapper even if undetected
	HFSEncoding  int  // preferred MacRoman/legacy text encoding id, spec.md §4.I
}

// ParseMountOptions accepts a string like "ro,hfs_uid=501,hfs_encoding=0" and
// returns the options it names, defaults otherwise. Only ro, wrapper and
// hfs_encoding are recognized; any other key (such as hfs_uid above) is
// accepted and ignored.
func ParseMountOptions(raw string) (MountOptions, error) {
	v := viper.New()
	v.SetDefault("ro", false)
	v.SetDefault("wrapper", false)
	v.SetDefault("hfs_encoding", 0)

	for _, pair := range strings.Split(raw, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		if eq := strings.IndexByte(pair, '='); eq >= 0 {
			v.Set(pair[:eq], pair[eq+1:])
		} else {
			v.Set(pair, true)
		}
	}

	return MountOptions{
		ReadOnly:     v.GetBool("ro"),
		ForceWrapper: v.GetBool("wrapper"),
		HFSEncoding:  v.GetInt("hfs_encoding"),
	}, nil
}
