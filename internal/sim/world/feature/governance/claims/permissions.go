package claims

type Permissions struct {
	CanBuild bool
	CanBreak bool
}

func WildPermissions() Permissions {
	return Permissions{CanBuild: true, CanBreak: true}
}

func ForClaim(isMember bool, flags Flags) Permissions {
	if isMember {
		return Permissions{CanBuild: true, CanBreak: true}
	}
	return Permissions{
		CanBuild: flags.AllowBuild,
		CanBreak: flags.AllowBreak,
	}
}
