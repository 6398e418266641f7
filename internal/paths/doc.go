// Provides platform-appropriate paths for kiln.
//
// All paths follow XDG conventions on Linux and platform-native conventions
// on macOS. The program name "kiln" is used as the subdirectory under each
// base path.
package paths
