package chorus

const (
	Name      = "chorus"
	NameUpper = "CHORUS"
	Version   = "0.3.2"
)
