package codec

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/vastspace/avatarwire/packet"
	"github.com/vastspace/avatarwire/spatial"
)

func TestInitialFlags(t *testing.T) {
	t.Run("NoData selects nothing", func(t *testing.T) {
		require.Zero(t, InitialFlags(&testAvatar{}, NoData, ChangeFlags{}, false))
	})

	t.Run("PALMinimum selects position and loudness only", func(t *testing.T) {
		flags := InitialFlags(&testAvatar{}, PALMinimum, ChangeFlags{}, false)
		require.Equal(t, packet.HasAvatarGlobalPosition|packet.HasAudioLoudness, flags)
	})

	t.Run("MinimumData excludes joint sections", func(t *testing.T) {
		avatar := &testAvatar{joints: makeJoints(4), farGrabValid: [3]bool{true, false, false}}
		flags := InitialFlags(avatar, MinimumData, ChangeFlags{}, false)
		require.False(t, flags.Has(packet.HasJointData))
		require.False(t, flags.Has(packet.HasJointDefaultPoseFlags))
		require.False(t, flags.Has(packet.HasGrabJoints))
	})

	t.Run("SendAllData selects every changed-gated field", func(t *testing.T) {
		avatar := &testAvatar{joints: makeJoints(4)}
		flags := InitialFlags(avatar, SendAllData, ChangeFlags{}, false)

		for _, bit := range []packet.HasFlags{
			packet.HasAvatarGlobalPosition, packet.HasAvatarOrientation,
			packet.HasAvatarBoundingBox, packet.HasAvatarScale,
			packet.HasLookAtPosition, packet.HasAudioLoudness,
			packet.HasSensorToWorldMatrix, packet.HasAdditionalFlags,
			packet.HasParentInfo, packet.HasJointData, packet.HasJointDefaultPoseFlags,
		} {
			require.True(t, flags.Has(bit), "bit %016b", bit)
		}
		// No parent, no controllers, no grabs, no face tracking.
		require.False(t, flags.Has(packet.HasAvatarLocalPosition))
		require.False(t, flags.Has(packet.HasHandControllers))
		require.False(t, flags.Has(packet.HasGrabJoints))
		require.False(t, flags.Has(packet.HasFaceTrackerInfo))
	})

	t.Run("CullSmallData selects only changed fields", func(t *testing.T) {
		avatar := &testAvatar{joints: makeJoints(4)}
		flags := InitialFlags(avatar, CullSmallData, ChangeFlags{Scale: true}, false)

		require.True(t, flags.Has(packet.HasAvatarGlobalPosition), "global position always rides")
		require.True(t, flags.Has(packet.HasAvatarScale))
		require.False(t, flags.Has(packet.HasAvatarOrientation))
		require.False(t, flags.Has(packet.HasLookAtPosition))
	})

	t.Run("Local position requires a parent", func(t *testing.T) {
		orphan := &testAvatar{}
		require.False(t, InitialFlags(orphan, SendAllData, ChangeFlags{}, false).Has(packet.HasAvatarLocalPosition))

		parented := &testAvatar{parentInfo: packet.ParentInfo{ID: uuid.New()}}
		require.True(t, InitialFlags(parented, SendAllData, ChangeFlags{}, false).Has(packet.HasAvatarLocalPosition))
		require.False(t, InitialFlags(parented, CullSmallData, ChangeFlags{}, false).Has(packet.HasAvatarLocalPosition))
		require.True(t, InitialFlags(parented, CullSmallData, ChangeFlags{Translation: true}, false).Has(packet.HasAvatarLocalPosition))
	})

	t.Run("Hand controllers follow cache validity", func(t *testing.T) {
		avatar := &testAvatar{handRightValid: true}
		require.True(t, InitialFlags(avatar, CullSmallData, ChangeFlags{}, false).Has(packet.HasHandControllers))

		avatar.handRightValid = false
		require.False(t, InitialFlags(avatar, CullSmallData, ChangeFlags{}, false).Has(packet.HasHandControllers))
	})

	t.Run("Grab joints require joint data and a valid cache", func(t *testing.T) {
		avatar := &testAvatar{joints: makeJoints(4), farGrabValid: [3]bool{false, false, true}}
		flags := InitialFlags(avatar, SendAllData, ChangeFlags{}, false)
		require.True(t, flags.Has(packet.HasGrabJoints))
		require.True(t, flags.Has(packet.HasJointData))
	})

	t.Run("Face tracker honors dropFaceTracking", func(t *testing.T) {
		avatar := &testAvatar{stateFlags: packet.StateFlags{HasScriptedBlendshapes: true}}
		require.True(t, InitialFlags(avatar, SendAllData, ChangeFlags{}, false).Has(packet.HasFaceTrackerInfo))
		require.False(t, InitialFlags(avatar, SendAllData, ChangeFlags{}, true).Has(packet.HasFaceTrackerInfo))
	})
}

func TestDistanceBasedMinRotationDot(t *testing.T) {
	avatarPos := spatial.Vec3{}
	viewerAt := func(d float32) spatial.Vec3 { return spatial.Vec3{X: d} }

	require.EqualValues(t, float32(MinRotationDot), DistanceBasedMinRotationDot(viewerAt(5), avatarPos))
	require.EqualValues(t, float32(rotationChange2D), DistanceBasedMinRotationDot(viewerAt(14), avatarPos))
	require.EqualValues(t, float32(rotationChange4D), DistanceBasedMinRotationDot(viewerAt(20), avatarPos))
	require.EqualValues(t, float32(rotationChange6D), DistanceBasedMinRotationDot(viewerAt(30), avatarPos))
	require.EqualValues(t, float32(rotationChange15D), DistanceBasedMinRotationDot(viewerAt(100), avatarPos))
	require.EqualValues(t, float32(rotationChange179D), DistanceBasedMinRotationDot(viewerAt(300), avatarPos))
}

func TestDistanceBasedMinTranslation(t *testing.T) {
	// Documented as eventually distance-sensitive; currently constant.
	require.EqualValues(t, float32(MinTranslation), DistanceBasedMinTranslation(spatial.Vec3{X: 500}))
}

func TestCommitSent(t *testing.T) {
	quatA := spatial.IdentityQuat()
	quatB := spatial.Quat{X: 0.3826834, W: 0.9238795} // 45 degrees about X

	t.Run("Grows to joint count and commits changes", func(t *testing.T) {
		avatar := &testAvatar{joints: []packet.JointData{
			{Rotation: quatB, Translation: spatial.Vec3{X: 0.5}},
		}}
		status := packet.SendStatus{RotationsSent: 1, TranslationsSent: 1}

		lastSent := CommitSent(avatar, nil, status, false)
		require.Len(t, lastSent, 1)
		require.Equal(t, quatB, lastSent[0].Rotation)
		require.Equal(t, spatial.Vec3{X: 0.5}, lastSent[0].Translation)
	})

	t.Run("Default poses never commit", func(t *testing.T) {
		avatar := &testAvatar{joints: []packet.JointData{
			{Rotation: quatB, RotationIsDefaultPose: true, Translation: spatial.Vec3{X: 1}, TranslationIsDefaultPose: true},
		}}
		status := packet.SendStatus{RotationsSent: 1, TranslationsSent: 1}

		lastSent := CommitSent(avatar, []packet.JointData{{Rotation: quatA}}, status, false)
		require.Equal(t, quatA, lastSent[0].Rotation)
		require.Equal(t, spatial.Vec3{}, lastSent[0].Translation)
	})

	t.Run("Culling keeps small changes pending", func(t *testing.T) {
		tiny := spatial.Quat{X: 1e-5, W: 1}.Normalize()
		avatar := &testAvatar{joints: []packet.JointData{
			{Rotation: tiny, Translation: spatial.Vec3{X: 0.00005}},
		}}
		status := packet.SendStatus{RotationsSent: 1, TranslationsSent: 1}

		lastSent := CommitSent(avatar, []packet.JointData{{Rotation: quatA}}, status, true)
		// The rotation barely moved and the translation is below the
		// threshold: neither commits, so both stay pending.
		require.Equal(t, quatA, lastSent[0].Rotation)
		require.Equal(t, spatial.Vec3{}, lastSent[0].Translation)
	})

	t.Run("Culling commits large changes", func(t *testing.T) {
		avatar := &testAvatar{joints: []packet.JointData{
			{Rotation: quatB, Translation: spatial.Vec3{X: 0.25}},
		}}
		status := packet.SendStatus{RotationsSent: 1, TranslationsSent: 1}

		lastSent := CommitSent(avatar, []packet.JointData{{Rotation: quatA}}, status, true)
		require.Equal(t, quatB, lastSent[0].Rotation)
		require.Equal(t, spatial.Vec3{X: 0.25}, lastSent[0].Translation)
	})

	t.Run("Only joints below the sent counts commit", func(t *testing.T) {
		avatar := &testAvatar{joints: []packet.JointData{
			{Rotation: quatB},
			{Rotation: quatB},
		}}
		status := packet.SendStatus{RotationsSent: 1, TranslationsSent: 0}

		lastSent := CommitSent(avatar, nil, status, false)
		require.Equal(t, quatB, lastSent[0].Rotation)
		require.Equal(t, spatial.Quat{}, lastSent[1].Rotation)
	})
}
