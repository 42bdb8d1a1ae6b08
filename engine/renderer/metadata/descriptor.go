package metadata

/** @brief The kind of descriptor a buffer is bound through. */
type DescriptorKind int

const (
	DESCRIPTOR_KIND_UNIFORM DescriptorKind = iota
	DESCRIPTOR_KIND_STORAGE

	DESCRIPTOR_KIND_COUNT = 2
)

func (k DescriptorKind) String() string {
	if k == DESCRIPTOR_KIND_STORAGE {
		return "storage"
	}
	return "uniform"
}

/**
 * @brief The role of a descriptor set. The numeric value is the set index
 * shaders use, so pipelines bind sets in this order.
 */
type SetRole int

const (
	/** @brief Data shared by every draw, bound once. */
	SET_ROLE_GLOBAL SetRole = iota
	/** @brief Data that changes per render pass. */
	SET_ROLE_PER_PASS
	/** @brief Material parameters. */
	SET_ROLE_MATERIAL
	/** @brief Data that changes per draw. */
	SET_ROLE_PER_OBJECT

	SET_ROLE_COUNT = 4
)

var setRoleNames = [SET_ROLE_COUNT]string{"global", "per_pass", "material", "per_object"}

func (r SetRole) String() string {
	if r < 0 || int(r) >= SET_ROLE_COUNT {
		return "unknown"
	}
	return setRoleNames[r]
}

/** @brief Returns the role with the given name. */
func SetRoleFromString(name string) (SetRole, bool) {
	for i, n := range setRoleNames {
		if n == name {
			return SetRole(i), true
		}
	}
	return SET_ROLE_GLOBAL, false
}

/** @brief All roles in binding order. */
func SetRoles() []SetRole {
	return []SetRole{SET_ROLE_GLOBAL, SET_ROLE_PER_PASS, SET_ROLE_MATERIAL, SET_ROLE_PER_OBJECT}
}
