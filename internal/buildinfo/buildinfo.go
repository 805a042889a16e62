package buildinfo

// Name is the integration identity reported to Yandex in webhook responses.
const Name = "Yandex-MoySklad Integration"

var (
	Version = "1.0.0"
	Commit  = ""
	BuiltAt = ""
)

func Info() map[string]string {
	return map[string]string{
		"name":    Name,
		"version": Version,
		"commit":  Commit,
		"builtAt": BuiltAt,
	}
}
