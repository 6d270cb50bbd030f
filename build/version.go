package build

var CurrentCommit string

const BuildVersion = "1.0.0"

func UserVersion() string {
	if CurrentCommit == "" {
		return BuildVersion
	}
	return BuildVersion + "+git." + CurrentCommit
}
